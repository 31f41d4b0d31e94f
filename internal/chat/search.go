package chat

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/errs"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/metrics"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
)

const (
	searchTTL     = 24 * time.Hour
	searchMaxRefs = 500
	minWordLen    = 3
)

// wordRegex matches word characters for search indexing.
var wordRegex = regexp.MustCompile(`\w+`)

// searchIndex is a best-effort, TTL'd word index over recent message bodies,
// kept in the broker. Indexing never fails a send; lookups re-read the
// durable log so expired or deleted messages drop out naturally.
type searchIndex struct {
	broker store.Broker
	logger zerolog.Logger
}

func newSearchIndex(broker store.Broker, logger zerolog.Logger) *searchIndex {
	return &searchIndex{
		broker: broker,
		logger: logger.With().Str("component", "search-index").Logger(),
	}
}

func searchWordKey(word string) string {
	return "search:words:" + strings.ToLower(word)
}

// ref encodes a message location as conversationID|messageID. Conversation
// ids contain ':' so the separator must differ.
func searchRef(msg *models.Message) string {
	return msg.ConversationID + "|" + msg.ID
}

func splitSearchRef(ref string) (conversationID, messageID string, ok bool) {
	i := strings.LastIndex(ref, "|")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

// add indexes a message body, fire-and-forget.
func (si *searchIndex) add(ctx context.Context, msg *models.Message) {
	if msg.Body == "" {
		return
	}
	words := wordRegex.FindAllString(strings.ToLower(msg.Body), -1)

	seen := make(map[string]bool)
	for _, word := range words {
		if len(word) < minWordLen || seen[word] {
			continue
		}
		seen[word] = true

		if err := si.broker.PushTrim(ctx, searchWordKey(word), searchRef(msg), searchMaxRefs, searchTTL); err != nil {
			metrics.BrokerFailures.WithLabelValues("search_index").Inc()
			si.logger.Warn().Err(err).Msg("search indexing degraded")
			return
		}
	}
}

// tokenize splits a query into indexable tokens.
func tokenize(query string) []string {
	words := wordRegex.FindAllString(strings.ToLower(query), -1)
	tokens := words[:0]
	for _, w := range words {
		if len(w) >= minWordLen {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// Search returns the caller's most recent non-deleted messages whose bodies
// contain every queried word, newest first. Only conversations the caller
// participates in are searched.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, errs.InvalidArg("query has no searchable words")
	}

	// Intersect the per-word ref lists; the first list drives ordering.
	refs, err := s.index.broker.Range(ctx, searchWordKey(tokens[0]))
	if err != nil {
		return nil, errs.Unavailable("search index unavailable", err)
	}

	inAll := make(map[string]int, len(refs))
	for _, ref := range refs {
		inAll[ref] = 1
	}
	for _, token := range tokens[1:] {
		other, err := s.index.broker.Range(ctx, searchWordKey(token))
		if err != nil {
			return nil, errs.Unavailable("search index unavailable", err)
		}
		present := make(map[string]bool, len(other))
		for _, ref := range other {
			present[ref] = true
		}
		for ref := range inAll {
			if !present[ref] {
				delete(inAll, ref)
			}
		}
	}

	results := make([]models.Message, 0, limit)
	for i := len(refs) - 1; i >= 0 && len(results) < limit; i-- {
		ref := refs[i]
		if _, ok := inAll[ref]; !ok {
			continue
		}
		delete(inAll, ref) // refs may repeat when a message was re-indexed

		conversationID, messageID, ok := splitSearchRef(ref)
		if !ok {
			continue
		}
		a, b, ok := models.ConversationParticipants(conversationID)
		if !ok || (userID != a && userID != b) {
			continue
		}

		msg, err := s.db.GetMessage(ctx, messageID)
		if err != nil {
			return nil, errs.Unavailable("message store unavailable", err)
		}
		if msg == nil || msg.Deleted {
			continue
		}
		results = append(results, *msg)
	}

	return results, nil
}
