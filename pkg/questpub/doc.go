// Package questpub provides the quest metadata validation, query and
// publication engine with pluggable record stores and blob storage backends.
//
// It exposes a single Service interface that orchestrates publishing quest
// documents (content artifact upload plus relational metadata upsert),
// unpublishing them (tombstone), direct lookup and filtered search.
// Record stores (memory, Postgres, SQLite) live under repo/ and blob stores
// (memory, filesystem, S3) under storage/.
//
// Validation Strategy
//
// Untrusted attribute maps are run through an AttributeValidator that tracks
// every key it was asked for, so unknown keys are reported generically. Field
// shapes are declared once in QuestSchema and SearchSchema; the same specs back
// both attribute extraction and persistence-side validation, and the sortable
// column allow-list used by the query builder.
package questpub
