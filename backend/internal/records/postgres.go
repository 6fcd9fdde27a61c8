package records

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"go.uber.org/zap"

	"noahs-ark/backend/internal/constants"
	"noahs-ark/backend/internal/genealogy"
	arkerrors "noahs-ark/backend/pkg/errors"
	"noahs-ark/backend/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

const driverName = "pgx"

const personColumns = "id, first_name, surname, surname_prefix, nicknames, sex, public, notes, created_at, updated_at, updated_by"

const (
	queryInsertPerson = `INSERT INTO persons (id, first_name, surname, surname_prefix, nicknames, sex, public, notes, updated_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at`
	querySelectPerson     = `SELECT ` + personColumns + ` FROM persons WHERE id = $1`
	queryLockPersonPublic = `SELECT public FROM persons WHERE id = $1 FOR UPDATE`
	querySearchPersons    = `SELECT ` + personColumns + ` FROM persons
WHERE (surname || ' ' || first_name) ILIKE $1
ORDER BY surname, first_name
LIMIT $2`
	queryInsertPrivacyLog = `INSERT INTO privacy_logs (id, person_id, changed_by, old_public, new_public)
VALUES ($1, $2, $3, $4, $5)`

	queryInsertFamily = `INSERT INTO families (id, father_id, mother_id, notes, public)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`
	querySelectFamily      = `SELECT id, father_id, mother_id, notes, public, created_at, updated_at FROM families WHERE id = $1`
	queryLockFamily        = querySelectFamily + ` FOR UPDATE`
	querySelectChildren    = `SELECT child_id FROM family_children WHERE family_id = $1 ORDER BY child_order`
	queryDeleteChildren    = `DELETE FROM family_children WHERE family_id = $1`
	queryInsertChild       = `INSERT INTO family_children (family_id, child_id, child_order) VALUES ($1, $2, $3)`
	queryInsertFamilyEvent = `INSERT INTO events (id, family_id, event_type, date_type, date_value, person_id, notes)
VALUES ($1, $2, $3, $4, $5, NULL, $6)`
)

// PostgresStore keeps records in Postgres through database/sql and the pgx
// driver. Each write runs in its own transaction.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.Component("records"),
	}
}

// OpenPostgres opens and pings a Postgres database
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

// Close closes the database handle
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	s.logger.Info("Record schema applied")
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*genealogy.Person, error) {
	var (
		id, sex, nicknames string
		prefix, notes      sql.NullString
		updatedBy          sql.NullString
		p                  genealogy.Person
	)
	if err := row.Scan(&id, &p.FirstName, &p.Surname, &prefix, &nicknames, &sex, &p.Public, &notes, &p.CreatedAt, &p.UpdatedAt, &updatedBy); err != nil {
		return nil, err
	}

	pid, err := genealogy.ParsePersonID(id)
	if err != nil {
		return nil, fmt.Errorf("invalid person id %q: %w", id, err)
	}
	p.ID = pid
	p.Sex = genealogy.ParseSex(sex)
	p.SurnamePrefix = nullString(prefix)
	p.Notes = nullString(notes)
	if err := json.Unmarshal([]byte(nicknames), &p.Nicknames); err != nil {
		return nil, fmt.Errorf("invalid nicknames for %s: %w", id, err)
	}
	if p.Nicknames == nil {
		p.Nicknames = []string{}
	}
	if updatedBy.Valid {
		wid, err := genealogy.ParseWizardID(updatedBy.String)
		if err != nil {
			return nil, fmt.Errorf("invalid updated_by for %s: %w", id, err)
		}
		p.UpdatedBy = &wid
	}
	return &p, nil
}

func (s *PostgresStore) CreatePerson(ctx context.Context, person genealogy.Person) (*genealogy.Person, error) {
	if person.ID.IsZero() {
		person.ID = genealogy.NewPersonID()
	}
	if person.Nicknames == nil {
		person.Nicknames = []string{}
	}
	if person.Sex == "" {
		person.Sex = genealogy.SexUnknown
	}
	nicknames, err := json.Marshal(person.Nicknames)
	if err != nil {
		return nil, fmt.Errorf("encode nicknames: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("begin create person", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, queryInsertPerson,
		person.ID.String(),
		person.FirstName,
		person.Surname,
		person.SurnamePrefix,
		string(nicknames),
		string(person.Sex),
		person.Public,
		person.Notes,
		wizardParam(person.UpdatedBy),
	).Scan(&person.CreatedAt, &person.UpdatedAt)
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("insert person", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, arkerrors.NewRecordQueryFailed("commit create person", err)
	}

	s.logger.Debug("Person created", zap.String("person_id", person.ID.String()))
	return &person, nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id genealogy.PersonID) (*genealogy.Person, error) {
	person, err := scanPerson(s.db.QueryRowContext(ctx, querySelectPerson, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("select person", err)
	}
	return person, nil
}

// UpdatePerson applies update under a row lock. A change of the public flag is
// written to privacy_logs in the same transaction.
func (s *PostgresStore) UpdatePerson(ctx context.Context, id genealogy.PersonID, update genealogy.PersonUpdate) (*genealogy.Person, error) {
	if !update.HasChanges() {
		return s.GetPerson(ctx, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("begin update person", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previousPublic bool
	err = tx.QueryRowContext(ctx, queryLockPersonPublic, id.String()).Scan(&previousPublic)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("lock person", err)
	}

	query, args := buildPersonUpdate(id, update)
	person, err := scanPerson(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("update person", err)
	}

	if update.Public != nil && *update.Public != previousPublic {
		_, err := tx.ExecContext(ctx, queryInsertPrivacyLog,
			uuid.NewString(),
			id.String(),
			wizardParam(update.UpdatedBy),
			previousPublic,
			*update.Public,
		)
		if err != nil {
			return nil, arkerrors.NewRecordQueryFailed("insert privacy log", err)
		}
		s.logger.Info("Person privacy changed",
			zap.String("person_id", id.String()),
			zap.Bool("public", *update.Public),
		)
	}

	if err := tx.Commit(); err != nil {
		return nil, arkerrors.NewRecordQueryFailed("commit update person", err)
	}
	return person, nil
}

func buildPersonUpdate(id genealogy.PersonID, u genealogy.PersonUpdate) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.FirstName != nil {
		add("first_name", *u.FirstName)
	}
	if u.Surname != nil {
		add("surname", *u.Surname)
	}
	if u.SurnamePrefix.Set {
		add("surname_prefix", u.SurnamePrefix.Value)
	}
	if u.Sex != nil {
		add("sex", string(*u.Sex))
	}
	if u.Notes.Set {
		add("notes", u.Notes.Value)
	}
	if u.Public != nil {
		add("public", *u.Public)
	}
	if u.UpdatedBy != nil {
		add("updated_by", u.UpdatedBy.String())
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id.String())

	query := fmt.Sprintf("UPDATE persons SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), personColumns)
	return query, args
}

func (s *PostgresStore) SearchByName(ctx context.Context, surname, firstName string, limit int) ([]genealogy.Person, error) {
	if limit <= 0 || limit > constants.SearchLimit {
		limit = constants.SearchLimit
	}
	pattern := fmt.Sprintf("%%%s %s%%", surname, firstName)

	rows, err := s.db.QueryContext(ctx, querySearchPersons, pattern, limit)
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("search persons", err)
	}
	defer func() { _ = rows.Close() }()

	persons := []genealogy.Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, arkerrors.NewRecordQueryFailed("scan person", err)
		}
		persons = append(persons, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, arkerrors.NewRecordQueryFailed("search persons", err)
	}
	return persons, nil
}

func (s *PostgresStore) CreateFamily(ctx context.Context, draft genealogy.FamilyDraft) (*genealogy.Family, error) {
	if draft.ID == (genealogy.FamilyID{}) {
		draft.ID = genealogy.NewFamilyID()
	}
	family := genealogy.Family{
		ID:       draft.ID,
		Father:   draft.Father,
		Mother:   draft.Mother,
		Children: append([]genealogy.PersonID{}, draft.Children...),
		Notes:    draft.Notes,
		Public:   draft.Public,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("begin create family", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, queryInsertFamily,
		family.ID.String(),
		personParam(family.Father),
		personParam(family.Mother),
		family.Notes,
		family.Public,
	).Scan(&family.CreatedAt, &family.UpdatedAt)
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("insert family", err)
	}

	if err := replaceChildren(ctx, tx, family.ID, family.Children); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, arkerrors.NewRecordQueryFailed("commit create family", err)
	}
	return &family, nil
}

func (s *PostgresStore) GetFamily(ctx context.Context, id genealogy.FamilyID) (*genealogy.Family, error) {
	family, err := loadFamily(ctx, s.db, querySelectFamily, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("select family", err)
	}
	return family, nil
}

// UpdateFamily locks the family row, applies changes and returns the family
// as it was before and after.
func (s *PostgresStore) UpdateFamily(ctx context.Context, id genealogy.FamilyID, changes genealogy.FamilyChanges) (*FamilyRevision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("begin update family", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, err := loadFamily(ctx, tx, queryLockFamily, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("lock family", err)
	}

	after := *before
	after.Children = append([]genealogy.PersonID{}, before.Children...)

	if changes.Father.Set || changes.Mother.Set || changes.Notes.Set || changes.Public != nil {
		applyFamilyChanges(&after, changes)
		query, args := buildFamilyUpdate(id, changes)
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&after.UpdatedAt); err != nil {
			return nil, arkerrors.NewRecordQueryFailed("update family", err)
		}
	}
	if changes.Children != nil {
		after.Children = append([]genealogy.PersonID{}, (*changes.Children)...)
		if err := replaceChildren(ctx, tx, id, after.Children); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, arkerrors.NewRecordQueryFailed("commit update family", err)
	}
	return &FamilyRevision{Before: *before, After: after}, nil
}

func applyFamilyChanges(f *genealogy.Family, c genealogy.FamilyChanges) {
	if c.Father.Set {
		f.Father = c.Father.Value
	}
	if c.Mother.Set {
		f.Mother = c.Mother.Value
	}
	if c.Notes.Set {
		f.Notes = c.Notes.Value
	}
	if c.Public != nil {
		f.Public = *c.Public
	}
}

func buildFamilyUpdate(id genealogy.FamilyID, c genealogy.FamilyChanges) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if c.Father.Set {
		add("father_id", personParam(c.Father.Value))
	}
	if c.Mother.Set {
		add("mother_id", personParam(c.Mother.Value))
	}
	if c.Notes.Set {
		add("notes", c.Notes.Value)
	}
	if c.Public != nil {
		add("public", *c.Public)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id.String())

	query := fmt.Sprintf("UPDATE families SET %s WHERE id = $%d RETURNING updated_at",
		strings.Join(sets, ", "), len(args))
	return query, args
}

func (s *PostgresStore) AddFamilyEvent(ctx context.Context, event genealogy.FamilyEvent) (*genealogy.FamilyEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	dateType := "unknown"
	var date any
	if event.Date != nil {
		dateType = "exact"
		date = event.Date.Format(time.DateOnly)
	}

	_, err := s.db.ExecContext(ctx, queryInsertFamilyEvent,
		event.ID,
		event.FamilyID.String(),
		event.EventType,
		dateType,
		date,
		event.Notes,
	)
	if err != nil {
		return nil, arkerrors.NewRecordQueryFailed("insert family event", err)
	}
	return &event, nil
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadFamily(ctx context.Context, q querier, query string, id genealogy.FamilyID) (*genealogy.Family, error) {
	var (
		fid            string
		father, mother sql.NullString
		notes          sql.NullString
		f              genealogy.Family
	)
	err := q.QueryRowContext(ctx, query, id.String()).
		Scan(&fid, &father, &mother, &notes, &f.Public, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}

	f.ID = id
	f.Notes = nullString(notes)
	if f.Father, err = nullPersonID(father); err != nil {
		return nil, err
	}
	if f.Mother, err = nullPersonID(mother); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, querySelectChildren, id.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	f.Children = []genealogy.PersonID{}
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, err
		}
		child, err := genealogy.ParsePersonID(cid)
		if err != nil {
			return nil, fmt.Errorf("invalid child id %q: %w", cid, err)
		}
		f.Children = append(f.Children, child)
	}
	return &f, rows.Err()
}

func replaceChildren(ctx context.Context, tx *sql.Tx, id genealogy.FamilyID, children []genealogy.PersonID) error {
	if _, err := tx.ExecContext(ctx, queryDeleteChildren, id.String()); err != nil {
		return arkerrors.NewRecordQueryFailed("delete family children", err)
	}
	for order, child := range children {
		if _, err := tx.ExecContext(ctx, queryInsertChild, id.String(), child.String(), order); err != nil {
			return arkerrors.NewRecordQueryFailed("insert family child", err)
		}
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullPersonID(ns sql.NullString) (*genealogy.PersonID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := genealogy.ParsePersonID(ns.String)
	if err != nil {
		return nil, fmt.Errorf("invalid person id %q: %w", ns.String, err)
	}
	return &id, nil
}

func personParam(id *genealogy.PersonID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func wizardParam(id *genealogy.WizardID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
