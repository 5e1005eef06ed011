package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/technosupport/sentinel/internal/annindex"
	"github.com/technosupport/sentinel/internal/config"
	"github.com/technosupport/sentinel/internal/models"
)

// Postgres is the pgx/pgvector-backed Store implementation.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens the pool and verifies connectivity.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
func (p *Postgres) Close()                         { p.pool.Close() }

func (p *Postgres) Organizations() OrganizationRepo { return organizationRepo{p.pool} }
func (p *Postgres) Persons() PersonRepo             { return personRepo{p.pool} }
func (p *Postgres) PersonFaces() PersonFaceRepo     { return personFaceRepo{p.pool} }
func (p *Postgres) Cameras() CameraRepo             { return cameraRepo{p.pool} }
func (p *Postgres) Events() EventRepo               { return eventRepo{p.pool} }
func (p *Postgres) EventCameras() EventCameraRepo   { return eventCameraRepo{p.pool} }
func (p *Postgres) Detections() DetectionRepo       { return detectionRepo{p.pool} }

// --- Organizations ---

type organizationRepo struct{ pool *pgxpool.Pool }

func (r organizationRepo) Create(ctx context.Context, o *models.Organization) error {
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		o.ID, o.Name, o.CreatedAt)
	return err
}

func (r organizationRepo) Get(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	o := &models.Organization{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

// --- Persons ---

type personRepo struct{ pool *pgxpool.Pool }

func (r personRepo) Create(ctx context.Context, p *models.Person) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	if p.Status == "" {
		p.Status = models.PersonActive
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO persons (id, organization_id, name, document_number, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.OrganizationID, p.Name, p.DocumentNumber, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r personRepo) Get(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p := &models.Person{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, document_number, status, created_at, updated_at
		 FROM persons WHERE id = $1`, id,
	).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.DocumentNumber, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (r personRepo) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.Person, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, name, document_number, status, created_at, updated_at
		 FROM persons WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var out []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.DocumentNumber, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r personRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.PersonStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE persons SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}

// --- PersonFaces ---

type personFaceRepo struct{ pool *pgxpool.Pool }

func (r personFaceRepo) Create(ctx context.Context, f *models.PersonFace) error {
	f.ID = uuid.New()
	f.CreatedAt = time.Now()
	if f.Status == "" {
		f.Status = models.FaceActive
	}
	vec := pgvector.NewVector(f.Embedding)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO person_faces (id, organization_id, person_id, embedding, reliability, status, source_image_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.OrganizationID, f.PersonID, vec, f.Reliability, f.Status, f.SourceImageURL, f.CreatedAt)
	return err
}

func (r personFaceRepo) Get(ctx context.Context, id uuid.UUID) (*models.PersonFace, error) {
	f := &models.PersonFace{}
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, person_id, embedding, reliability, status, source_image_url, created_at
		 FROM person_faces WHERE id = $1`, id,
	).Scan(&f.ID, &f.OrganizationID, &f.PersonID, &vec, &f.Reliability, &f.Status, &f.SourceImageURL, &f.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person face: %w", err)
	}
	f.Embedding = vec.Slice()
	return f, nil
}

func (r personFaceRepo) ListByPerson(ctx context.Context, personID uuid.UUID) ([]models.PersonFace, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, person_id, embedding, reliability, status, source_image_url, created_at
		 FROM person_faces WHERE person_id = $1 ORDER BY created_at DESC`, personID)
	if err != nil {
		return nil, fmt.Errorf("list person faces: %w", err)
	}
	defer rows.Close()

	var out []models.PersonFace
	for rows.Next() {
		var f models.PersonFace
		var vec pgvector.Vector
		if err := rows.Scan(&f.ID, &f.OrganizationID, &f.PersonID, &vec, &f.Reliability, &f.Status, &f.SourceImageURL, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person face: %w", err)
		}
		f.Embedding = vec.Slice()
		out = append(out, f)
	}
	return out, nil
}

func (r personFaceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.FaceStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE person_faces SET status = $1 WHERE id = $2`, status, id)
	return err
}

// ListEnrollable implements annindex.Loader: joins person_faces to persons
// and keeps only active/active/non-null-embedding rows, mirroring the ANN
// bootstrap contract verbatim.
func (r personFaceRepo) ListEnrollable(ctx context.Context) ([]annindex.EnrollableFace, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pf.id, pf.person_id, p.name, pf.embedding
		 FROM person_faces pf
		 JOIN persons p ON p.id = pf.person_id
		 WHERE pf.status = $1 AND p.status = $2 AND pf.embedding IS NOT NULL`,
		models.FaceActive, models.PersonActive)
	if err != nil {
		return nil, fmt.Errorf("list enrollable faces: %w", err)
	}
	defer rows.Close()

	var out []annindex.EnrollableFace
	for rows.Next() {
		var e annindex.EnrollableFace
		var vec pgvector.Vector
		if err := rows.Scan(&e.PersonFaceID, &e.PersonID, &e.PersonName, &vec); err != nil {
			return nil, fmt.Errorf("scan enrollable face: %w", err)
		}
		e.Embedding = vec.Slice()
		out = append(out, e)
	}
	return out, nil
}

// --- Cameras ---

type cameraRepo struct{ pool *pgxpool.Pool }

func (r cameraRepo) Create(ctx context.Context, c *models.Camera) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cameras (id, organization_id, name, stream_url, username, password, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.OrganizationID, c.Name, c.StreamURL, c.Username, c.Password, c.IsActive, c.CreatedAt)
	return err
}

func (r cameraRepo) Get(ctx context.Context, id uuid.UUID) (*models.Camera, error) {
	c := &models.Camera{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, stream_url, username, password, is_active, created_at
		 FROM cameras WHERE id = $1`, id,
	).Scan(&c.ID, &c.OrganizationID, &c.Name, &c.StreamURL, &c.Username, &c.Password, &c.IsActive, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get camera: %w", err)
	}
	return c, nil
}

func (r cameraRepo) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.Camera, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, name, stream_url, username, password, is_active, created_at
		 FROM cameras WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var out []models.Camera
	for rows.Next() {
		var c models.Camera
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.StreamURL, &c.Username, &c.Password, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// --- Events ---

type eventRepo struct{ pool *pgxpool.Pool }

func (r eventRepo) Create(ctx context.Context, e *models.Event) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	weekDays := make([]string, len(e.WeekDays))
	for i, d := range e.WeekDays {
		weekDays[i] = string(d)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO events (id, organization_id, name, type, is_scheduled, is_active, recurrence_type,
		  scheduled_date, start_time, end_time, week_days, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.OrganizationID, e.Name, e.Type, e.IsScheduled, e.IsActive, e.RecurrenceType,
		e.ScheduledDate, e.StartTime, e.EndTime, weekDays, e.CreatedAt)
	return err
}

func (r eventRepo) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return scanEvent(r.pool.QueryRow(ctx, eventSelect+` WHERE id = $1`, id))
}

func (r eventRepo) ListScheduled(ctx context.Context) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx,
		eventSelect+` WHERE is_scheduled = true AND is_active = true AND type = 'scheduled'`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r eventRepo) UpdateActive(ctx context.Context, id uuid.UUID, isActive bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE events SET is_active = $1 WHERE id = $2`, isActive, id)
	return err
}

const eventSelect = `SELECT id, organization_id, name, type, is_scheduled, is_active, recurrence_type,
	scheduled_date, start_time, end_time, week_days, created_at FROM events`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	e, err := scanEventRow(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func scanEventRow(row rowScanner) (*models.Event, error) {
	var e models.Event
	var weekDays []string
	if err := row.Scan(&e.ID, &e.OrganizationID, &e.Name, &e.Type, &e.IsScheduled, &e.IsActive, &e.RecurrenceType,
		&e.ScheduledDate, &e.StartTime, &e.EndTime, &weekDays, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.WeekDays = make([]models.WeekDay, len(weekDays))
	for i, d := range weekDays {
		e.WeekDays[i] = models.WeekDay(d)
	}
	return &e, nil
}

// --- EventCameras ---

type eventCameraRepo struct{ pool *pgxpool.Pool }

func (r eventCameraRepo) Create(ctx context.Context, ec *models.EventCamera) error {
	ec.ID = uuid.New()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO event_cameras (id, event_id, camera_id, is_active) VALUES ($1, $2, $3, $4)`,
		ec.ID, ec.EventID, ec.CameraID, ec.IsActive)
	return err
}

func (r eventCameraRepo) FindActiveByEventID(ctx context.Context, eventID uuid.UUID) ([]models.EventCamera, error) {
	return queryEventCameras(ctx, r.pool,
		`SELECT id, event_id, camera_id, is_active FROM event_cameras WHERE event_id = $1 AND is_active = true`,
		eventID)
}

func (r eventCameraRepo) FindByCameraID(ctx context.Context, cameraID uuid.UUID) ([]models.EventCamera, error) {
	return queryEventCameras(ctx, r.pool,
		`SELECT id, event_id, camera_id, is_active FROM event_cameras WHERE camera_id = $1`, cameraID)
}

func queryEventCameras(ctx context.Context, pool *pgxpool.Pool, query string, arg any) ([]models.EventCamera, error) {
	rows, err := pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query event cameras: %w", err)
	}
	defer rows.Close()

	var out []models.EventCamera
	for rows.Next() {
		var ec models.EventCamera
		if err := rows.Scan(&ec.ID, &ec.EventID, &ec.CameraID, &ec.IsActive); err != nil {
			return nil, fmt.Errorf("scan event camera: %w", err)
		}
		out = append(out, ec)
	}
	return out, nil
}

// --- Detections ---

type detectionRepo struct{ pool *pgxpool.Pool }

func (r detectionRepo) Create(ctx context.Context, d *models.Detection) error {
	d.ID = uuid.New()
	if d.DetectedAt.IsZero() {
		d.DetectedAt = time.Now()
	}
	var vec *pgvector.Vector
	if len(d.Embedding) > 0 {
		v := pgvector.NewVector(d.Embedding)
		vec = &v
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO detections (id, organization_id, event_id, camera_id, person_face_id, detected_at,
		  confidence, status, image_url, embedding, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.OrganizationID, d.EventID, d.CameraID, d.PersonFaceID, d.DetectedAt,
		d.Confidence, d.Status, d.ImageURL, vec, d.Metadata)
	return err
}

func (r detectionRepo) Get(ctx context.Context, id uuid.UUID) (*models.Detection, error) {
	d := &models.Detection{}
	var vec *pgvector.Vector
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, event_id, camera_id, person_face_id, detected_at, confidence, status, image_url, embedding, metadata
		 FROM detections WHERE id = $1`, id,
	).Scan(&d.ID, &d.OrganizationID, &d.EventID, &d.CameraID, &d.PersonFaceID, &d.DetectedAt,
		&d.Confidence, &d.Status, &d.ImageURL, &vec, &d.Metadata)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get detection: %w", err)
	}
	if vec != nil {
		d.Embedding = vec.Slice()
	}
	return d, nil
}

func (r detectionRepo) ListByPersonFace(ctx context.Context, personFaceID uuid.UUID) ([]models.Detection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, event_id, camera_id, person_face_id, detected_at, confidence, status, image_url, embedding, metadata
		 FROM detections WHERE person_face_id = $1 ORDER BY detected_at DESC`, personFaceID)
	if err != nil {
		return nil, fmt.Errorf("list detections by person face: %w", err)
	}
	defer rows.Close()

	var out []models.Detection
	for rows.Next() {
		var d models.Detection
		var vec *pgvector.Vector
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.EventID, &d.CameraID, &d.PersonFaceID, &d.DetectedAt,
			&d.Confidence, &d.Status, &d.ImageURL, &vec, &d.Metadata); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		if vec != nil {
			d.Embedding = vec.Slice()
		}
		out = append(out, d)
	}
	return out, nil
}

func (r detectionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.DetectionStatus, personFaceID *uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE detections SET status = $1, person_face_id = $2 WHERE id = $3`, status, personFaceID, id)
	return err
}
