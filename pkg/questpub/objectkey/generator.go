package objectkey

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Generator defines the interface for artifact key generation strategies
type Generator interface {
	// GenerateKey creates an object key for a new artifact of a quest document
	GenerateKey(ownerID, documentID string) string
}

// Stamper hands out strictly increasing millisecond stamps, so two artifacts
// of the same document never share a key even within one millisecond.
type Stamper struct {
	mu   sync.Mutex
	last int64
	Now  func() time.Time
}

// Next returns max(now in ms, previous+1).
func (s *Stamper) Next() int64 {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ms := now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms
	return ms
}

// TimestampGenerator provides the flat "<owner>/<document>/<millis>.xml" layout
type TimestampGenerator struct {
	Stamper   *Stamper
	Extension string
}

func NewTimestampGenerator() *TimestampGenerator {
	return &TimestampGenerator{
		Stamper:   &Stamper{},
		Extension: "xml",
	}
}

func (g *TimestampGenerator) GenerateKey(ownerID, documentID string) string {
	return fmt.Sprintf("%s/%s/%d.%s",
		sanitizePathComponent(ownerID), sanitizePathComponent(documentID), g.Stamper.Next(), g.ext())
}

func (g *TimestampGenerator) ext() string {
	if g.Extension == "" {
		return "xml"
	}
	return g.Extension
}

// ShardedGenerator spreads owners over Git-style shard directories
// Layout: quests/ab/<owner>/<document>/<millis>.xml
type ShardedGenerator struct {
	// ShardLength controls how many hex characters to use for sharding (default: 2)
	ShardLength int
	Base        *TimestampGenerator
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{
		ShardLength: 2,
		Base:        NewTimestampGenerator(),
	}
}

func (g *ShardedGenerator) GenerateKey(ownerID, documentID string) string {
	// Shard on the owner so every artifact of one user lands together
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(ownerID)))
	n := g.ShardLength
	if n <= 0 || n > len(hash) {
		n = 2
	}
	return fmt.Sprintf("quests/%s/%s", hash[:n], g.Base.GenerateKey(ownerID, documentID))
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(ownerID, documentID string) string
}

func NewCustomFuncGenerator(fn func(ownerID, documentID string) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(ownerID, documentID string) string {
	return g.GenerateFunc(ownerID, documentID)
}

func sanitizePathComponent(component string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"..", "_",
	)
	return replacer.Replace(component)
}

// NewRecommendedGenerator returns the recommended generator for new installations
func NewRecommendedGenerator() Generator {
	return NewTimestampGenerator()
}
