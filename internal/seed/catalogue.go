package seed

import "fmt"

type catalogueBook struct {
	Title       string
	Author      string
	Description string
	Genre       string
	Year        int
}

var catalogue = []catalogueBook{
	{"Kindred", "Octavia E. Butler", "A young writer is pulled back in time to a Maryland plantation.", "Science Fiction", 1979},
	{"The Left Hand of Darkness", "Ursula K. Le Guin", "An envoy visits a planet whose people have no fixed sex.", "Science Fiction", 1969},
	{"Beloved", "Toni Morrison", "A formerly enslaved woman is haunted by her past.", "Literary Fiction", 1987},
	{"The Fifth Season", "N. K. Jemisin", "The world ends, again, on a continent of constant quakes.", "Fantasy", 2015},
	{"Things Fall Apart", "Chinua Achebe", "An Igbo leader faces colonial upheaval.", "Literary Fiction", 1958},
	{"The Name of the Rose", "Umberto Eco", "A friar investigates deaths in a medieval abbey.", "Mystery", 1980},
	{"Pedro Paramo", "Juan Rulfo", "A son searches for his father in a town of ghosts.", "Literary Fiction", 1955},
	{"Solaris", "Stanislaw Lem", "Scientists fail to understand an ocean that thinks.", "Science Fiction", 1961},
	{"The Haunting of Hill House", "Shirley Jackson", "Four guests stay in a house that does not want them.", "Horror", 1959},
	{"A Wizard of Earthsea", "Ursula K. Le Guin", "A young mage unleashes a shadow and must hunt it.", "Fantasy", 1968},
	{"The Remains of the Day", "Kazuo Ishiguro", "A butler reflects on decades of service.", "Literary Fiction", 1989},
	{"Rebecca", "Daphne du Maurier", "A new bride lives in the shadow of the first wife.", "Mystery", 1938},
}

var readerNames = []string{
	"Amara Okafor", "Lucas Moreau", "Mei Tanaka", "Ravi Iyer", "Sofia Lindqvist",
	"Kwame Mensah", "Elena Petrova", "Diego Alvarez", "Hana Kim", "Omar Haddad",
}

var reviewTexts = []string{
	"Could not put it down.",
	"Slow start, but the last third is stunning.",
	"Beautiful prose, thin plot.",
	"I will be thinking about this one for a while.",
	"Not for me, though I see why people love it.",
	"A re-read that held up better than expected.",
	"The ending felt rushed.",
}

// bookAt returns the i-th catalogue entry, numbering repeats once the list wraps.
func bookAt(i int) catalogueBook {
	b := catalogue[i%len(catalogue)]
	if round := i / len(catalogue); round > 0 {
		b.Title = fmt.Sprintf("%s (vol. %d)", b.Title, round+1)
	}
	return b
}

func readerAt(i int) (name, email string) {
	name = readerNames[i%len(readerNames)]
	if round := i / len(readerNames); round > 0 {
		name = fmt.Sprintf("%s %d", name, round+1)
	}
	return name, fmt.Sprintf("reader%02d@bookreview.local", i+1)
}
