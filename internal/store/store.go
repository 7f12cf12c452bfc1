// Package store keeps projects, ideas, personas and reactions in SQLite.
// The default DSN is an in-memory database that lives as long as the process.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/ideafit/internal/model"
)

const (
	DefaultDSN = ":memory:"

	ideaCounterStart    = 1000
	projectCounterStart = 1000
	personaCounterStart = 1

	timeLayout = "2006-01-02T15:04:05.000000Z"
)

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ideas (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	version    TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL,
	target     TEXT NOT NULL,
	pain       TEXT NOT NULL,
	solution   TEXT NOT NULL,
	price      INTEGER NOT NULL DEFAULT 0,
	channel    TEXT NOT NULL,
	onboarding TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS personas (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL,
	age           INTEGER,
	gender        TEXT NOT NULL DEFAULT '',
	background    TEXT NOT NULL DEFAULT '',
	traits        TEXT NOT NULL DEFAULT '{}',
	comment_style TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reactions (
	id            TEXT PRIMARY KEY,
	idea_id       TEXT NOT NULL,
	project_id    TEXT NOT NULL,
	version       TEXT NOT NULL DEFAULT '',
	persona_id    TEXT NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	likelihood    REAL NOT NULL DEFAULT 0,
	intent_to_try REAL NOT NULL DEFAULT 0,
	segment       TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS reactions_idea ON reactions (idea_id);

CREATE TABLE IF NOT EXISTS counters (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

type Store interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	CreateProject(ctx context.Context, name string) (model.Project, error)
	EnsureProject(ctx context.Context, id, name string) error
	ListIdeas(ctx context.Context, projectID string) ([]model.Idea, error)
	GetIdea(ctx context.Context, id string) (model.Idea, error)
	CreateIdea(ctx context.Context, in model.IdeaCreate) (model.Idea, error)
	ListReactions(ctx context.Context, ideaID string, limit int) ([]model.Reaction, error)
	CreateReaction(ctx context.Context, r model.Reaction) (model.Reaction, error)
	ListPersonas(ctx context.Context) ([]model.Persona, error)
	CreatePersona(ctx context.Context, in model.PersonaCreate) (model.Persona, error)
}

type Config struct {
	DSN string
	Now func() time.Time
}

type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(cfg Config) (*SQLStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = DefaultDSN
	}
	if dsn != DefaultDSN && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection: an in-memory database is private to its connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SQLStore{db: db, now: now}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

// --- projects ---

func (s *SQLStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	out := []model.Project{}
	if err := s.db.SelectContext(ctx, &out, `SELECT id, name, created_at, updated_at FROM projects ORDER BY updated_at DESC, rowid DESC`); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

func (s *SQLStore) CreateProject(ctx context.Context, name string) (model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Project{}, invalid("project name is required")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Project{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	base := slugify(name)
	if base == "" {
		n, err := nextCounter(ctx, tx, "project", projectCounterStart)
		if err != nil {
			return model.Project{}, err
		}
		base = fmt.Sprintf("project-%d", n)
	}
	slug := base
	for i := 1; ; i++ {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(1) FROM projects WHERE id = ?`, slug); err != nil {
			return model.Project{}, fmt.Errorf("check slug: %w", err)
		}
		if exists == 0 {
			break
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}

	now := s.stamp()
	p := model.Project{ID: slug, Name: name, CreatedAt: now, UpdatedAt: now}
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO projects (id, name, created_at, updated_at) VALUES (:id, :name, :created_at, :updated_at)`, p); err != nil {
		return model.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Project{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// EnsureProject creates a placeholder project when id is unknown. An empty
// name falls back to the id.
func (s *SQLStore) EnsureProject(ctx context.Context, id, name string) error {
	return ensureProject(ctx, s.db, id, name, s.stamp())
}

func ensureProject(ctx context.Context, db sqlx.ExecerContext, id, name, now string) error {
	if strings.TrimSpace(name) == "" {
		name = id
	}
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO projects (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`, id, name, now, now)
	if err != nil {
		return fmt.Errorf("ensure project %s: %w", id, err)
	}
	return nil
}

// --- ideas ---

const ideaColumns = `id, project_id, version, title, target, pain, solution, price, channel, onboarding, created_at, updated_at`

func (s *SQLStore) ListIdeas(ctx context.Context, projectID string) ([]model.Idea, error) {
	out := []model.Idea{}
	var err error
	if projectID == "" {
		err = s.db.SelectContext(ctx, &out, `SELECT `+ideaColumns+` FROM ideas ORDER BY updated_at DESC, rowid DESC`)
	} else {
		err = s.db.SelectContext(ctx, &out, `SELECT `+ideaColumns+` FROM ideas WHERE project_id = ? ORDER BY updated_at DESC, rowid DESC`, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	return out, nil
}

func (s *SQLStore) GetIdea(ctx context.Context, id string) (model.Idea, error) {
	var idea model.Idea
	err := s.db.GetContext(ctx, &idea, `SELECT `+ideaColumns+` FROM ideas WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Idea{}, notFound("idea", id)
	}
	if err != nil {
		return model.Idea{}, fmt.Errorf("get idea %s: %w", id, err)
	}
	return idea, nil
}

func (s *SQLStore) CreateIdea(ctx context.Context, in model.IdeaCreate) (model.Idea, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Idea{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	n, err := nextCounter(ctx, tx, "idea", ideaCounterStart)
	if err != nil {
		return model.Idea{}, err
	}
	now := s.stamp()
	if err := ensureProject(ctx, tx, in.ProjectID, "", now); err != nil {
		return model.Idea{}, err
	}
	idea := model.Idea{
		ID:         fmt.Sprintf("idea-%d", n),
		ProjectID:  in.ProjectID,
		Version:    in.Version,
		Title:      in.Title,
		Target:     in.Target,
		Pain:       in.Pain,
		Solution:   in.Solution,
		Price:      in.Price,
		Channel:    in.Channel,
		Onboarding: in.Onboarding,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := insertIdea(ctx, tx, idea); err != nil {
		return model.Idea{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Idea{}, fmt.Errorf("commit: %w", err)
	}
	slog.Info("idea created", "id", idea.ID, "project", idea.ProjectID)
	return idea, nil
}

func insertIdea(ctx context.Context, db sqlx.ExtContext, idea model.Idea) error {
	_, err := sqlx.NamedExecContext(ctx, db, `INSERT OR REPLACE INTO ideas (`+ideaColumns+`)
		VALUES (:id, :project_id, :version, :title, :target, :pain, :solution, :price, :channel, :onboarding, :created_at, :updated_at)`, idea)
	if err != nil {
		return fmt.Errorf("insert idea %s: %w", idea.ID, err)
	}
	return nil
}

// --- reactions ---

const reactionColumns = `id, idea_id, project_id, version, persona_id, text, likelihood, intent_to_try, segment, created_at`

// ListReactions returns up to limit reactions in insertion order.
func (s *SQLStore) ListReactions(ctx context.Context, ideaID string, limit int) ([]model.Reaction, error) {
	if _, err := s.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	out := []model.Reaction{}
	if err := s.db.SelectContext(ctx, &out, `SELECT `+reactionColumns+` FROM reactions WHERE idea_id = ? ORDER BY rowid ASC LIMIT ?`, ideaID, limit); err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	return out, nil
}

// CreateReaction assigns id and timestamp and registers the project if needed.
func (s *SQLStore) CreateReaction(ctx context.Context, r model.Reaction) (model.Reaction, error) {
	if r.IdeaID == "" {
		return model.Reaction{}, invalid("reaction requires an idea id")
	}
	r.ID = "reaction-" + uuid.NewString()
	r.CreatedAt = s.stamp()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Reaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if r.ProjectID != "" {
		if err := ensureProject(ctx, tx, r.ProjectID, r.ProjectID, r.CreatedAt); err != nil {
			return model.Reaction{}, err
		}
	}
	if err := insertReaction(ctx, tx, r); err != nil {
		return model.Reaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Reaction{}, fmt.Errorf("commit: %w", err)
	}
	return r, nil
}

func insertReaction(ctx context.Context, db sqlx.ExtContext, r model.Reaction) error {
	_, err := sqlx.NamedExecContext(ctx, db, `INSERT OR REPLACE INTO reactions (`+reactionColumns+`)
		VALUES (:id, :idea_id, :project_id, :version, :persona_id, :text, :likelihood, :intent_to_try, :segment, :created_at)`, r)
	if err != nil {
		return fmt.Errorf("insert reaction %s: %w", r.ID, err)
	}
	return nil
}

// --- personas ---

type personaRow struct {
	ID           string        `db:"id"`
	Name         string        `db:"name"`
	Category     string        `db:"category"`
	Age          sql.NullInt64 `db:"age"`
	Gender       string        `db:"gender"`
	Background   string        `db:"background"`
	Traits       string        `db:"traits"`
	CommentStyle string        `db:"comment_style"`
	CreatedAt    string        `db:"created_at"`
	UpdatedAt    string        `db:"updated_at"`
}

func (r personaRow) toModel() model.Persona {
	p := model.Persona{
		ID: r.ID,
		PersonaCreate: model.PersonaCreate{
			Name:         r.Name,
			Category:     model.PersonaCategory(r.Category),
			Gender:       r.Gender,
			Background:   r.Background,
			CommentStyle: r.CommentStyle,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Age.Valid {
		age := int(r.Age.Int64)
		p.Age = &age
	}
	if r.Traits != "" && r.Traits != "{}" {
		traits := map[string]float64{}
		if err := json.Unmarshal([]byte(r.Traits), &traits); err == nil {
			p.Traits = traits
		}
	}
	return p
}

func personaToRow(p model.Persona) personaRow {
	row := personaRow{
		ID:           p.ID,
		Name:         p.Name,
		Category:     string(p.Category),
		Gender:       p.Gender,
		Background:   p.Background,
		Traits:       "{}",
		CommentStyle: p.CommentStyle,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.Age != nil {
		row.Age = sql.NullInt64{Int64: int64(*p.Age), Valid: true}
	}
	if len(p.Traits) > 0 {
		if b, err := json.Marshal(p.Traits); err == nil {
			row.Traits = string(b)
		}
	}
	return row
}

// ListPersonas returns personas in registration order.
func (s *SQLStore) ListPersonas(ctx context.Context) ([]model.Persona, error) {
	var rows []personaRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, category, age, gender, background, traits, comment_style, created_at, updated_at FROM personas ORDER BY rowid ASC`); err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	out := make([]model.Persona, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *SQLStore) CreatePersona(ctx context.Context, in model.PersonaCreate) (model.Persona, error) {
	if !model.ValidCategory(in.Category) {
		return model.Persona{}, invalid("unknown persona category %q", in.Category)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Persona{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	n, err := nextCounter(ctx, tx, "persona", personaCounterStart)
	if err != nil {
		return model.Persona{}, err
	}
	now := s.stamp()
	in.Traits = clampTraits(in.Traits)
	p := model.Persona{ID: fmt.Sprintf("persona-%d", n), PersonaCreate: in, CreatedAt: now, UpdatedAt: now}
	if err := insertPersona(ctx, tx, p); err != nil {
		return model.Persona{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Persona{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func insertPersona(ctx context.Context, db sqlx.ExtContext, p model.Persona) error {
	_, err := sqlx.NamedExecContext(ctx, db, `INSERT OR REPLACE INTO personas (id, name, category, age, gender, background, traits, comment_style, created_at, updated_at)
		VALUES (:id, :name, :category, :age, :gender, :background, :traits, :comment_style, :created_at, :updated_at)`, personaToRow(p))
	if err != nil {
		return fmt.Errorf("insert persona %s: %w", p.ID, err)
	}
	return nil
}

func clampTraits(traits map[string]float64) map[string]float64 {
	if traits == nil {
		return nil
	}
	out := make(map[string]float64, len(traits))
	for k, v := range traits {
		out[k] = max(0, min(1, v))
	}
	return out
}

// --- helpers ---

// nextCounter returns start on first use and increments afterwards.
func nextCounter(ctx context.Context, tx *sqlx.Tx, key string, start int64) (int64, error) {
	var n int64
	err := tx.GetContext(ctx, &n, `INSERT INTO counters (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = value + 1
		RETURNING value`, key, start)
	if err != nil {
		return 0, fmt.Errorf("next %s counter: %w", key, err)
	}
	return n, nil
}

func slugify(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
