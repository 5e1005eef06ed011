// Package models defines the persistent entities shared across the
// recognition engine, the control-plane API, and the enrollment CLI.
package models

import (
	"time"

	"github.com/google/uuid"
)

// PersonStatus is the lifecycle state of a Person.
type PersonStatus string

const (
	PersonActive       PersonStatus = "active"
	PersonInactive     PersonStatus = "inactive"
	PersonUnidentified PersonStatus = "unidentified"
)

// FaceStatus is the lifecycle state of a PersonFace.
type FaceStatus string

const (
	FaceActive   FaceStatus = "active"
	FaceInactive FaceStatus = "inactive"
)

// DetectionStatus mirrors the recognition outcome of one Detection row.
type DetectionStatus string

const (
	DetectionDetected   DetectionStatus = "detected"
	DetectionRecognized DetectionStatus = "reconhecida"
	DetectionConfirmed  DetectionStatus = "confirmada"
	DetectionRejected   DetectionStatus = "rejeitada"
)

// RecurrenceType is how a scheduled Event repeats.
type RecurrenceType string

const (
	RecurrenceOnce    RecurrenceType = "once"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// Organization is the tenant boundary; every other entity is scoped to one.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Person is an identified (or not-yet-identified) individual, owner of 0..N PersonFaces.
type Person struct {
	ID              uuid.UUID    `json:"id"`
	OrganizationID  uuid.UUID    `json:"organizationId"`
	Name            string       `json:"name"`
	DocumentNumber  *string      `json:"documentNumber,omitempty"`
	Status          PersonStatus `json:"status"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// PersonFace is one enrolled face sample belonging to a Person.
//
// A PersonFace with a non-null Embedding must appear in the ANN index iff
// its own status is active and its person's status is active; the
// repository and the index are kept consistent by the enrollment and
// promotion code paths, never by the recognition worker.
type PersonFace struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	PersonID       uuid.UUID  `json:"personId"`
	Embedding      []float32  `json:"-"`
	Reliability    float32    `json:"reliability"`
	Status         FaceStatus `json:"status"`
	SourceImageURL string     `json:"sourceImageUrl,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Camera is one RTSP source.
type Camera struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Name           string    `json:"name"`
	StreamURL      string    `json:"streamUrl"`
	Username       string    `json:"-"`
	Password       string    `json:"-"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EffectiveURL returns the RTSP URL with embedded credentials injected into
// the authority component, as the orchestrator dials it.
func (c Camera) EffectiveURL() string {
	return injectCredentials(c.StreamURL, c.Username, c.Password)
}

// WeekDay enumerates the seven days used by Event.WeekDays.
type WeekDay string

const (
	Sunday    WeekDay = "sunday"
	Monday    WeekDay = "monday"
	Tuesday   WeekDay = "tuesday"
	Wednesday WeekDay = "wednesday"
	Thursday  WeekDay = "thursday"
	Friday    WeekDay = "friday"
	Saturday  WeekDay = "saturday"
)

// Event is a schedulable capture window.
type Event struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organizationId"`
	Name           string         `json:"name"`
	Type           string         `json:"type"` // "scheduled" enables orchestration
	IsScheduled    bool           `json:"isScheduled"`
	IsActive       bool           `json:"isActive"`
	RecurrenceType RecurrenceType `json:"recurrenceType"`
	ScheduledDate  *time.Time     `json:"scheduledDate,omitempty"` // for "once"
	StartTime      string         `json:"startTime"`               // HH:MM
	EndTime        string         `json:"endTime"`                 // HH:MM
	WeekDays       []WeekDay      `json:"weekDays,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// EventCamera associates a schedulable Event with a Camera.
type EventCamera struct {
	ID       uuid.UUID `json:"id"`
	EventID  uuid.UUID `json:"eventId"`
	CameraID uuid.UUID `json:"cameraId"`
	IsActive bool      `json:"isActive"`
}

// BoundingBox is a detector-reported face rectangle in pixel coordinates.
type BoundingBox struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// DetectionMetadata is the structured form of Detection.Metadata; the
// repository stores it as an opaque JSON string. The recognition worker
// builds this struct and marshals it into that string; nothing in this
// module parses the string back.
type DetectionMetadata struct {
	BoundingBox             BoundingBox `json:"boundingBox"`
	IsKnown                 bool        `json:"isKnown"`
	RecognitionConfidence   float32     `json:"recognitionConfidence"`
	PersonName              *string     `json:"personName"`
	EncodingLength          int         `json:"encodingLength"`
	FaceDetectionConfidence float32     `json:"faceDetectionConfidence"`
	ProcessingTimestamp     time.Time   `json:"processingTimestamp"`
	FullDetectionImageURL   string      `json:"fullDetectionImageUrl"`
	FaceIndex               int         `json:"faceIndex"`
	AutoConfirmed           bool        `json:"autoConfirmed"`
}

// Detection is one persisted observation of a face.
//
// Invariant: PersonFaceID == nil iff Status == DetectionDetected.
// Status == DetectionConfirmed iff the match similarity was 1.0 on first
// recognition, or an operator manually confirmed it later.
type Detection struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organizationId"`
	EventID        uuid.UUID       `json:"eventId"`
	CameraID       uuid.UUID       `json:"cameraId"`
	PersonFaceID   *uuid.UUID      `json:"personFaceId,omitempty"`
	DetectedAt     time.Time       `json:"detectedAt"`
	Confidence     float32         `json:"confidence"`
	Status         DetectionStatus `json:"status"`
	ImageURL       string          `json:"imageUrl"`
	Embedding      []float32       `json:"-"` // raw query vector; only carried when unresolved
	Metadata       string          `json:"metadata"`
}

func injectCredentials(rawURL, user, pass string) string {
	if user == "" && pass == "" {
		return rawURL
	}
	scheme, rest, found := cutScheme(rawURL)
	if !found {
		return rawURL
	}
	cred := user
	if pass != "" {
		cred = user + ":" + pass
	}
	return scheme + "://" + cred + "@" + rest
}

func cutScheme(rawURL string) (scheme, rest string, ok bool) {
	for i := 0; i+2 < len(rawURL); i++ {
		if rawURL[i] == ':' && rawURL[i+1] == '/' && rawURL[i+2] == '/' {
			return rawURL[:i], rawURL[i+3:], true
		}
	}
	return "", rawURL, false
}
