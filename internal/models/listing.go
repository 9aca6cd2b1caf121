package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ListingKind is the discriminator of the four listing collections.
type ListingKind string

const (
	KindCar      ListingKind = "car"
	KindProperty ListingKind = "property"
	KindLand     ListingKind = "land"
	KindMachine  ListingKind = "machine"
)

var AllKinds = []ListingKind{KindCar, KindProperty, KindLand, KindMachine}

// ParseKind accepts the singular tag as well as the REST collection name
// ("cars", "properties", ...).
func ParseKind(s string) (ListingKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "car", "cars", "vehicle", "vehicles":
		return KindCar, true
	case "property", "properties":
		return KindProperty, true
	case "land", "lands":
		return KindLand, true
	case "machine", "machines", "machinery":
		return KindMachine, true
	}
	return "", false
}

func (k ListingKind) Collection() string {
	switch k {
	case KindCar:
		return "cars"
	case KindProperty:
		return "properties"
	case KindLand:
		return "lands"
	case KindMachine:
		return "machines"
	}
	return ""
}

type ListingStatus string

const (
	ListingAvailable   ListingStatus = "available"
	ListingSold        ListingStatus = "sold"
	ListingRented      ListingStatus = "rented"
	ListingPending     ListingStatus = "pending"
	ListingReserved    ListingStatus = "reserved"
	ListingMaintenance ListingStatus = "maintenance"
)

var kindStatuses = map[ListingKind][]ListingStatus{
	KindCar:      {ListingAvailable, ListingSold, ListingRented, ListingPending, ListingReserved},
	KindProperty: {ListingAvailable, ListingSold, ListingRented, ListingPending},
	KindLand:     {ListingAvailable, ListingSold, ListingRented, ListingPending, ListingReserved},
	KindMachine:  {ListingAvailable, ListingSold, ListingRented, ListingPending, ListingMaintenance},
}

// AllowsStatus reports whether status is part of the kind's status set.
func (k ListingKind) AllowsStatus(s ListingStatus) bool {
	for _, v := range kindStatuses[k] {
		if v == s {
			return true
		}
	}
	return false
}

type Image struct {
	URL       string `json:"url"`
	StorageID string `json:"storage_id"`
	IsPrimary bool   `json:"is_primary"`
}

type Location struct {
	City    string `gorm:"type:varchar(120);index" json:"city" validate:"required,max=120"`
	Region  string `gorm:"type:varchar(120)" json:"region" validate:"max=120"`
	Address string `gorm:"type:text" json:"address"`
}

// ListingBase holds the fields shared by every listing kind.
type ListingBase struct {
	ID          uuid.UUID                  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title       string                     `gorm:"not null" json:"title" validate:"required,min=3,max=200"`
	Description string                     `gorm:"type:text" json:"description" validate:"max=5000"`
	Price       float64                    `gorm:"not null" json:"price" validate:"gt=0"`
	Currency    string                     `gorm:"type:varchar(8);default:'ETB'" json:"currency"`
	Purpose     DealType                   `gorm:"type:varchar(10);not null;default:'sale'" json:"purpose" validate:"omitempty,oneof=sale rent"`
	Images      datatypes.JSONSlice[Image] `gorm:"type:jsonb" json:"images"`
	Location    Location                   `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	OwnerID     uuid.UUID                  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Status      ListingStatus              `gorm:"type:varchar(20);not null;default:'available';index" json:"status"`
	Views       int64                      `gorm:"not null;default:0" json:"views"`
	Approved    bool                       `gorm:"not null;default:false;index" json:"approved"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *ListingBase) Common() *ListingBase { return b }

func (b *ListingBase) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return
}

// PrimaryImage returns the image flagged primary, or the first one.
func (b *ListingBase) PrimaryImage() *Image {
	for i := range b.Images {
		if b.Images[i].IsPrimary {
			return &b.Images[i]
		}
	}
	if len(b.Images) > 0 {
		return &b.Images[0]
	}
	return nil
}

// Listing is implemented by the four concrete listing kinds.
type Listing interface {
	Common() *ListingBase
	Kind() ListingKind
}

type Car struct {
	ListingBase
	Make         string `gorm:"type:varchar(80);index" json:"make" validate:"required,max=80"`
	Model        string `gorm:"type:varchar(80)" json:"model" validate:"required,max=80"`
	Year         int    `json:"year" validate:"required,gte=1950,lte=2100"`
	Mileage      int64  `json:"mileage" validate:"gte=0"`
	FuelType     string `gorm:"type:varchar(20)" json:"fuel_type" validate:"omitempty,oneof=petrol diesel electric hybrid"`
	Transmission string `gorm:"type:varchar(20)" json:"transmission" validate:"omitempty,oneof=manual automatic"`
	BodyType     string `gorm:"type:varchar(30)" json:"body_type"`
	Color        string `gorm:"type:varchar(30)" json:"color"`
	Condition    string `gorm:"type:varchar(20)" json:"condition" validate:"omitempty,oneof=new used"`
}

func (*Car) Kind() ListingKind { return KindCar }

type Property struct {
	ListingBase
	PropertyType string                      `gorm:"type:varchar(30);index" json:"property_type" validate:"required,oneof=house apartment villa condominium commercial office"`
	Bedrooms     int                         `json:"bedrooms" validate:"gte=0"`
	Bathrooms    int                         `json:"bathrooms" validate:"gte=0"`
	AreaSqm      float64                     `json:"area_sqm" validate:"gt=0"`
	Furnished    bool                        `json:"furnished"`
	Floors       int                         `json:"floors" validate:"gte=0"`
	YearBuilt    int                         `json:"year_built" validate:"omitempty,gte=1900,lte=2100"`
	Amenities    datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"amenities"`
}

func (*Property) Kind() ListingKind { return KindProperty }

type Land struct {
	ListingBase
	AreaSqm      float64 `json:"area_sqm" validate:"gt=0"`
	LandUse      string  `gorm:"type:varchar(30)" json:"land_use" validate:"required,oneof=residential commercial agricultural industrial mixed"`
	HasTitleDeed bool    `json:"has_title_deed"`
	Topography   string  `gorm:"type:varchar(30)" json:"topography"`
}

func (*Land) Kind() ListingKind { return KindLand }

type Machine struct {
	ListingBase
	MachineType string `gorm:"type:varchar(50);index" json:"machine_type" validate:"required,max=50"`
	Brand       string `gorm:"type:varchar(80)" json:"brand" validate:"required,max=80"`
	Model       string `gorm:"type:varchar(80)" json:"model"`
	Year        int    `json:"year" validate:"omitempty,gte=1950,lte=2100"`
	HoursUsed   int64  `json:"hours_used" validate:"gte=0"`
	Condition   string `gorm:"type:varchar(20)" json:"condition" validate:"omitempty,oneof=new used refurbished"`
	Capacity    string `gorm:"type:varchar(50)" json:"capacity"`
}

func (*Machine) Kind() ListingKind { return KindMachine }

// NewListing returns an empty listing of the given kind.
func NewListing(k ListingKind) Listing {
	switch k {
	case KindCar:
		return &Car{}
	case KindProperty:
		return &Property{}
	case KindLand:
		return &Land{}
	case KindMachine:
		return &Machine{}
	}
	return nil
}

// Favorite is one user's membership in a listing's favorites set.
type Favorite struct {
	ID        uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Kind      ListingKind `gorm:"type:varchar(20);not null;uniqueIndex:idx_favorite_member" json:"kind"`
	ListingID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_favorite_member" json:"listing_id"`
	UserID    uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_favorite_member;index" json:"user_id"`
	CreatedAt time.Time   `json:"created_at"`
}

func (f *Favorite) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return
}
