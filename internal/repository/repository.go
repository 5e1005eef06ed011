// Package repository defines the storage-agnostic persistence contracts
// the recognition engine, orchestrator, and control-plane API consume.
// No SQL dialect leaks past this package; concrete stores (Postgres) live
// in sibling files implementing these interfaces.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/annindex"
	"github.com/technosupport/sentinel/internal/models"
)

type OrganizationRepo interface {
	Create(ctx context.Context, org *models.Organization) error
	Get(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

type PersonRepo interface {
	Create(ctx context.Context, p *models.Person) error
	Get(ctx context.Context, id uuid.UUID) (*models.Person, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.Person, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.PersonStatus) error
}

// PersonFaceRepo backs both enrollment and the ANN index bootstrap.
type PersonFaceRepo interface {
	Create(ctx context.Context, f *models.PersonFace) error
	Get(ctx context.Context, id uuid.UUID) (*models.PersonFace, error)
	ListByPerson(ctx context.Context, personID uuid.UUID) ([]models.PersonFace, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.FaceStatus) error

	// ListEnrollable satisfies annindex.Loader: active person, active face,
	// non-null embedding — the bootstrap set for Index.Initialize/Rebuild.
	ListEnrollable(ctx context.Context) ([]annindex.EnrollableFace, error)
}

type CameraRepo interface {
	Create(ctx context.Context, c *models.Camera) error
	Get(ctx context.Context, id uuid.UUID) (*models.Camera, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.Camera, error)
}

type EventRepo interface {
	Create(ctx context.Context, e *models.Event) error
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListScheduled(ctx context.Context) ([]models.Event, error)
	UpdateActive(ctx context.Context, id uuid.UUID, isActive bool) error
}

type EventCameraRepo interface {
	Create(ctx context.Context, ec *models.EventCamera) error
	FindActiveByEventID(ctx context.Context, eventID uuid.UUID) ([]models.EventCamera, error)
	FindByCameraID(ctx context.Context, cameraID uuid.UUID) ([]models.EventCamera, error)
}

type DetectionRepo interface {
	Create(ctx context.Context, d *models.Detection) error
	Get(ctx context.Context, id uuid.UUID) (*models.Detection, error)
	ListByPersonFace(ctx context.Context, personFaceID uuid.UUID) ([]models.Detection, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.DetectionStatus, personFaceID *uuid.UUID) error
}

// Store bundles every repository the engine needs behind one handle, the
// way the orchestrator and recognition worker receive it: one dependency,
// not seven.
type Store interface {
	Organizations() OrganizationRepo
	Persons() PersonRepo
	PersonFaces() PersonFaceRepo
	Cameras() CameraRepo
	Events() EventRepo
	EventCameras() EventCameraRepo
	Detections() DetectionRepo
	Ping(ctx context.Context) error
	Close()
}
