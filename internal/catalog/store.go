package catalog

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// maxLimit is the hard server-side page cap; larger requests are clipped.
	maxLimit     = 50
	defaultLimit = 20
)

// Store contains all catalog persistence logic.
type Store struct {
	db  *sql.DB
	rnd *rand.Rand
}

// NewStore wires a catalog data store backed by SQLite.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Init applies schema migrations for the catalog database.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			features TEXT NOT NULL DEFAULT '[]',
			creator_name TEXT NOT NULL DEFAULT '',
			creator_username TEXT NOT NULL DEFAULT '',
			price_raw TEXT NOT NULL DEFAULT 'Free',
			price REAL NOT NULL DEFAULT 0,
			rating_average REAL NOT NULL DEFAULT 0,
			rating_count INTEGER NOT NULL DEFAULT 0,
			users_count INTEGER NOT NULL DEFAULT 0,
			views INTEGER NOT NULL DEFAULT 0,
			featured INTEGER NOT NULL DEFAULT 0,
			image TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_items_category_created ON items(category, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_items_price ON items(price);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply catalog schema: %w", err)
		}
	}
	return nil
}

// Insert stores one listing. Missing IDs and timestamps are filled in.
func (s *Store) Insert(ctx context.Context, item Item) (Item, error) {
	if strings.TrimSpace(item.Name) == "" {
		return Item{}, errors.New("item name required")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if item.Features == nil {
		item.Features = []string{}
	}
	tags, err := json.Marshal(item.Tags)
	if err != nil {
		return Item{}, fmt.Errorf("marshal tags: %w", err)
	}
	features, err := json.Marshal(item.Features)
	if err != nil {
		return Item{}, fmt.Errorf("marshal features: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO items(id, name, description, category, tags, features, creator_name, creator_username,
			price_raw, price, rating_average, rating_count, users_count, views, featured, image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Description, item.Category, string(tags), string(features),
		item.CreatorName, item.CreatorUsername, item.PriceRaw, item.Price,
		item.RatingAverage, item.RatingCount, item.UsersCount, item.Views,
		boolToInt(item.Featured), item.Image, item.CreatedAt,
	); err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	return item, nil
}

// Count returns the total item count, optionally scoped to a category.
func (s *Store) Count(ctx context.Context, category string) (int, error) {
	query := `SELECT COUNT(*) FROM items`
	var args []any
	if category != "" {
		query += ` WHERE category = ? COLLATE NOCASE`
		args = append(args, category)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return total, nil
}

// CountSearch returns how many items match a free-text query across the
// searchable text columns.
func (s *Store) CountSearch(ctx context.Context, q string) (int, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.Count(ctx, "")
	}
	needle := "%" + strings.ToLower(q) + "%"
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items
		 WHERE lower(name) LIKE ? OR lower(description) LIKE ? OR lower(tags) LIKE ?
		    OR lower(creator_name) LIKE ? OR lower(creator_username) LIKE ? OR lower(category) LIKE ?`,
		needle, needle, needle, needle, needle, needle,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count search: %w", err)
	}
	return total, nil
}

// cursorToken is the decoded form of the opaque continuation cursor. The key
// ties a cursor to the query that produced it so it cannot be replayed
// against a different filter combination.
type cursorToken struct {
	Offset int    `json:"o"`
	Key    uint32 `json:"k"`
}

// ErrBadCursor signals a cursor that is malformed or belongs to a different query.
var ErrBadCursor = errors.New("invalid pagination cursor")

func queryKey(q ListQuery) uint32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%g|%g|%g|%s|%s|%s",
		strings.ToLower(q.Category), q.Sort, q.PriceMin, q.PriceMax, q.MinRating,
		strings.Join(q.Tags, ","), strings.Join(q.Features, ","), strings.ToLower(q.Search))
	return h.Sum32()
}

func encodeCursor(offset int, key uint32) string {
	raw, _ := json.Marshal(cursorToken{Offset: offset, Key: key})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(cursor string, key uint32) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrBadCursor
	}
	var token cursorToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return 0, ErrBadCursor
	}
	if token.Key != key || token.Offset < 0 {
		return 0, ErrBadCursor
	}
	return token.Offset, nil
}

// List returns one filtered, sorted, paginated window plus a continuation
// cursor valid for the same query.
func (s *Store) List(ctx context.Context, q ListQuery) (ItemPage, error) {
	limit := q.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	key := queryKey(q)
	offset := q.Offset
	if q.Cursor != "" {
		decoded, err := decodeCursor(q.Cursor, key)
		if err != nil {
			return ItemPage{}, err
		}
		offset = decoded
	}
	if offset < 0 {
		offset = 0
	}

	clauses := []string{"1=1"}
	var args []any
	if q.Category != "" {
		clauses = append(clauses, "category = ? COLLATE NOCASE")
		args = append(args, q.Category)
	}
	if q.PriceMin > 0 {
		clauses = append(clauses, "price >= ?")
		args = append(args, q.PriceMin)
	}
	if q.PriceMax > 0 {
		clauses = append(clauses, "price <= ?")
		args = append(args, q.PriceMax)
	}
	if q.MinRating > 0 {
		clauses = append(clauses, "rating_average >= ?")
		args = append(args, q.MinRating)
	}
	if clause, facetArgs := facetClause("tags", q.Tags); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, facetArgs...)
	}
	if clause, facetArgs := facetClause("features", q.Features); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, facetArgs...)
	}
	if needle := strings.TrimSpace(q.Search); needle != "" {
		like := "%" + strings.ToLower(needle) + "%"
		clauses = append(clauses, `(lower(name) LIKE ? OR lower(description) LIKE ? OR lower(tags) LIKE ?
			OR lower(creator_name) LIKE ? OR lower(creator_username) LIKE ? OR lower(category) LIKE ?)`)
		args = append(args, like, like, like, like, like, like)
	}

	where := strings.Join(clauses, " AND ")

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM items WHERE %s`, where)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return ItemPage{}, fmt.Errorf("count listing: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT id, name, description, category, tags, features, creator_name, creator_username,
		price_raw, price, rating_average, rating_count, users_count, views, featured, image, created_at
		FROM items WHERE %s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy(q.Sort))
	argsWithPaging := append(append([]any{}, args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, dataQuery, argsWithPaging...)
	if err != nil {
		return ItemPage{}, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return ItemPage{}, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return ItemPage{}, fmt.Errorf("iter items: %w", err)
	}

	hasMore := offset+len(items) < total
	page := ItemPage{
		Items:   items,
		Total:   total,
		HasMore: hasMore,
	}
	if hasMore {
		page.Cursor = encodeCursor(offset+len(items), key)
	}
	return page, nil
}

func facetClause(column string, values []string) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}
	// Facet columns hold JSON arrays; membership within one facet is OR.
	parts := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("lower(%s) LIKE ?", column))
		args = append(args, `%"`+strings.ToLower(v)+`"%`)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func orderBy(sortBy string) string {
	switch sortBy {
	case "rating":
		return "rating_average DESC, id"
	case "popularity":
		return "users_count DESC, views DESC, id"
	case "price_asc":
		return "price ASC, id"
	case "price_desc":
		return "price DESC, id"
	default: // recency
		return "created_at DESC, id"
	}
}

func scanItem(rows *sql.Rows) (Item, error) {
	var (
		item     Item
		tags     string
		features string
		featured int
	)
	if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Category, &tags, &features,
		&item.CreatorName, &item.CreatorUsername, &item.PriceRaw, &item.Price,
		&item.RatingAverage, &item.RatingCount, &item.UsersCount, &item.Views,
		&featured, &item.Image, &item.CreatedAt); err != nil {
		return Item{}, fmt.Errorf("scan item: %w", err)
	}
	item.Featured = featured != 0
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		item.Tags = []string{}
	}
	if err := json.Unmarshal([]byte(features), &item.Features); err != nil {
		item.Features = []string{}
	}
	return item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	seedNames = []string{
		"Invoice Automator", "Lead Scout", "Meeting Scribe", "Inbox Triage",
		"Ad Copy Studio", "Churn Watcher", "Data Janitor", "Support Pilot",
		"Trend Radar", "Contract Reviewer", "Pricing Oracle", "Outreach Bot",
	}
	seedCategories = []string{"Productivity", "Marketing", "Sales", "Finance", "Support"}
	seedTags       = []string{"automation", "email", "analytics", "crm", "invoicing", "ai", "scheduling"}
	seedFeatures   = []string{"api-access", "webhooks", "templates", "multi-language", "export"}
	seedCreators   = []string{"mira", "devon", "kai", "tomas", "alina", "jun"}
	// Mixed price representations on purpose; clients have to cope with all
	// of them.
	seedPrices = []string{"Free", "0", "9.99", "$19.99", "49", "$129.00", "free"}
)

// SeedRandom inserts n randomly generated listings and returns them.
func (s *Store) SeedRandom(ctx context.Context, n int) ([]Item, error) {
	if n < 1 {
		n = 1
	}
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		name := seedNames[s.rnd.Intn(len(seedNames))]
		creator := seedCreators[s.rnd.Intn(len(seedCreators))]
		priceRaw := seedPrices[s.rnd.Intn(len(seedPrices))]
		item := Item{
			ID:              uuid.NewString(),
			Name:            fmt.Sprintf("%s %04d", name, s.rnd.Intn(10000)),
			Description:     fmt.Sprintf("%s for busy teams", name),
			Category:        seedCategories[s.rnd.Intn(len(seedCategories))],
			Tags:            pickSome(s.rnd, seedTags),
			Features:        pickSome(s.rnd, seedFeatures),
			CreatorName:     strings.ToUpper(creator[:1]) + creator[1:],
			CreatorUsername: creator,
			PriceRaw:        priceRaw,
			Price:           parseSeedPrice(priceRaw),
			RatingAverage:   float64(s.rnd.Intn(51)) / 10,
			RatingCount:     s.rnd.Intn(500),
			UsersCount:      s.rnd.Intn(20000),
			Views:           s.rnd.Intn(100000),
			Featured:        s.rnd.Intn(5) == 0,
			CreatedAt:       time.Now().UTC().Add(-time.Duration(s.rnd.Int63n(int64(180 * 24 * time.Hour)))),
		}
		inserted, err := s.Insert(ctx, item)
		if err != nil {
			return nil, err
		}
		items = append(items, inserted)
	}
	return items, nil
}

func pickSome(r *rand.Rand, source []string) []string {
	count := 1 + r.Intn(3)
	picked := make([]string, 0, count)
	seen := map[string]bool{}
	for len(picked) < count {
		v := source[r.Intn(len(source))]
		if !seen[v] {
			seen[v] = true
			picked = append(picked, v)
		}
	}
	return picked
}

func parseSeedPrice(raw string) float64 {
	cleaned := strings.TrimLeft(strings.TrimSpace(raw), "$")
	if cleaned == "" || strings.EqualFold(cleaned, "free") {
		return 0
	}
	var f float64
	if _, err := fmt.Sscanf(cleaned, "%f", &f); err != nil || f < 0 {
		return 0
	}
	return f
}
