package tasks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/partwheel/garsync/internal/models"
	"github.com/partwheel/garsync/internal/shared"
)

// Mapper converts garage records into CRM deal field sets.
//
// Mapping is pure: the same record and configuration always produce the same
// fields, and no I/O happens here. The attribute names accepted in the field
// map match the source API's JSON keys.
type Mapper struct {
	titlePrefix   string
	userFieldCode string
	fieldMap      map[string]string
}

// NewMapper creates a Mapper from the configured title prefix, the user-field
// code holding the source user id, and the attribute to field-code map.
func NewMapper(titlePrefix, userFieldCode string, fieldMap map[string]string) *Mapper {
	return &Mapper{
		titlePrefix:   titlePrefix,
		userFieldCode: userFieldCode,
		fieldMap:      fieldMap,
	}
}

// Map builds the deal fields for one garage record. Records missing an id,
// a user id, or an update timestamp cannot be synced and yield a mapping
// error; empty optional attributes are simply omitted from the field set.
func (m *Mapper) Map(record models.GarageRecord) (models.DealFields, error) {
	if record.ID == 0 {
		return models.DealFields{}, fmt.Errorf("%w: record has no id", shared.ErrMapping)
	}
	if record.UserID == 0 {
		return models.DealFields{}, fmt.Errorf("%w: record %d has no user id", shared.ErrMapping, record.ID)
	}
	if record.DateUpdated == "" {
		return models.DealFields{}, fmt.Errorf("%w: record %d has no update timestamp", shared.ErrMapping, record.ID)
	}

	fields := make(map[string]string, len(m.fieldMap)+1)
	for attr, code := range m.fieldMap {
		value, ok := attributeValue(record, attr)
		if !ok {
			return models.DealFields{}, fmt.Errorf("%w: unknown garage attribute %q", shared.ErrMapping, attr)
		}
		if value == "" {
			continue
		}
		fields[code] = value
	}

	if m.userFieldCode != "" {
		fields[m.userFieldCode] = strconv.FormatInt(record.UserID, 10)
	}

	return models.DealFields{
		Title:  m.title(record),
		Fields: fields,
	}, nil
}

// title derives the deal title from the record's own name when present,
// falling back to the vehicle description.
func (m *Mapper) title(record models.GarageRecord) string {
	name := strings.TrimSpace(record.Name)
	if name == "" {
		parts := make([]string, 0, 3)
		if record.Manufacturer != "" {
			parts = append(parts, record.Manufacturer)
		}
		if record.Model != "" {
			parts = append(parts, record.Model)
		}
		if record.Year != 0 {
			parts = append(parts, strconv.Itoa(record.Year))
		}
		name = strings.Join(parts, " ")
	}
	if name == "" {
		name = "garage " + strconv.FormatInt(record.ID, 10)
	}
	if m.titlePrefix == "" {
		return name
	}
	return m.titlePrefix + " " + name
}

// attributeValue resolves one source attribute to its string form. The bool
// result distinguishes an unknown attribute from a known but empty one.
func attributeValue(record models.GarageRecord, attr string) (string, bool) {
	switch attr {
	case "id":
		return strconv.FormatInt(record.ID, 10), true
	case "userId":
		return strconv.FormatInt(record.UserID, 10), true
	case "name":
		return record.Name, true
	case "comment":
		return record.Comment, true
	case "year":
		if record.Year == 0 {
			return "", true
		}
		return strconv.Itoa(record.Year), true
	case "vin":
		return record.VIN, true
	case "frame":
		return record.Frame, true
	case "mileage":
		if record.Mileage == 0 {
			return "", true
		}
		return strconv.Itoa(record.Mileage), true
	case "manufacturerId":
		if record.ManufacturerID == 0 {
			return "", true
		}
		return strconv.FormatInt(record.ManufacturerID, 10), true
	case "manufacturer":
		return record.Manufacturer, true
	case "modelId":
		if record.ModelID == 0 {
			return "", true
		}
		return strconv.FormatInt(record.ModelID, 10), true
	case "model":
		return record.Model, true
	case "modificationId":
		if record.ModificationID == 0 {
			return "", true
		}
		return strconv.FormatInt(record.ModificationID, 10), true
	case "modification":
		return record.Modification, true
	case "dateUpdated":
		return record.DateUpdated, true
	case "vehicleRegPlate":
		return record.VehicleRegPlate, true
	default:
		return "", false
	}
}
