package elasticsearch

// DefaultIndexName is the index used for book documents when none is set.
const DefaultIndexName = "bookreview_books"

// buildIndexMapping returns the mapping of the books index. Title and author
// are analysed for full-text matching; genre is an exact keyword.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "folding": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":         { "type": "keyword" },
      "title":      { "type": "text", "analyzer": "folding", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "author":     { "type": "text", "analyzer": "folding", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "genre":      { "type": "keyword" },
      "year":       { "type": "integer" },
      "added_by":   { "type": "keyword" },
      "created_at": { "type": "date" }
    }
  }
}`
}
