package store

import "time"

// Processing states of a buffered raw document. Transitions are
// pending -> processed or pending -> errored only; terminal states are
// never left except through an explicit errored reset.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusErrored   = "errored"
)

// RawDocument is one row of the staging buffer. Raw payload and source
// context are immutable once appended; only status, error_text and
// processed_at change afterwards.
type RawDocument struct {
	ID          int64      `json:"id"`
	CityName    string     `json:"city_name"`
	RegionID    string     `json:"region_id"`
	DistrictID  string     `json:"district_id"`
	RawJSON     string     `json:"raw_json"`
	Status      string     `json:"status"`
	ErrorText   string     `json:"error_text,omitempty"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// IncidentKey is the natural identity of one incident across all entity
// tables and the idempotency key for its expansion.
type IncidentKey struct {
	KartID     string `json:"kart_id"`
	RegionID   string `json:"region_id"`
	DistrictID string `json:"district_id"`
}

// Expansion is the full flat-record set derived from one incident.
type Expansion struct {
	Key      IncidentKey
	Main     IncidentMain
	Vehicles []Vehicle
	Factors  []Factor
	Objects  []SceneObject
}

type IncidentMain struct {
	RowNum            int
	DtpDate           *time.Time
	DtpTime           *time.Time
	District          string
	DtpType           string
	Deaths            int
	Wounded           int
	VehiclesCount     int
	ParticipantsCount int
	EmtpNumber        string
	Settlement        string
	Street            string
	House             string
	Road              string
	Km                string
	M                 string
	RoadCategory      string
	RoadClass         string
	Weather           string
	RoadCondition     string
	Lighting          string
	Severity          string
	CoordW            float64
	CoordL            float64
}

// Vehicle carries its participants; the writer flattens the hierarchy,
// stamping each participant with the parent vehicle_num.
type Vehicle struct {
	VehicleNum    string
	VehicleStatus string
	VehicleType   string
	Brand         string
	Model         string
	Color         string
	DriveType     string
	Year          string
	Damage        string
	TechCondition string
	Ownership     string
	OwnerType     string
	Participants  []Participant
}

type Participant struct {
	ParticipantType string
	Violations      []string
	Status          string
	Gender          string
	Age             string
	Alcohol         string
	SafetyBelt      string
	ParticipantNum  string
	SeatGroup       string
	InjuredCardID   string
	HiddenStatus    string
}

// Factor categories match the tagged sub-collections of the source payload.
const (
	FactorRoadDeficiency = "ndu"
	FactorRoadCondition  = "sdor"
)

type Factor struct {
	FactorType  string
	Description string
}

type SceneObject struct {
	Description string
}

type BufferStats struct {
	Pending   int64 `json:"pending"`
	Processed int64 `json:"processed"`
	Errored   int64 `json:"errored"`
}
