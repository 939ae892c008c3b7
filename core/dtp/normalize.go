package dtp

import (
	"encoding/json"
	"fmt"
	"strings"

	"dtp-ingest/core/store"
	"dtp-ingest/core/utils"
)

// Normalizer expands one raw buffered document into per-incident entity
// record sets. It is pure apart from logging: content defects local to one
// sub-element degrade to defaults or skips, they never fail the document.
type Normalizer struct {
	defaultCity string
	logger      *utils.Logger
}

func NewNormalizer(defaultCity string, logger *utils.Logger) *Normalizer {
	return &Normalizer{defaultCity: defaultCity, logger: logger}
}

// Normalize returns the expansions for every usable incident in the
// document and the count of skipped incidents. The only returned errors are
// document-level: a payload that is neither a JSON object nor a list.
func (n *Normalizer) Normalize(doc *store.RawDocument) ([]store.Expansion, int, error) {
	var decoded any
	if err := json.Unmarshal([]byte(doc.RawJSON), &decoded); err != nil {
		return nil, 0, fmt.Errorf("payload of buffer row %d is not valid JSON: %w", doc.ID, err)
	}
	var incidents []any
	switch t := decoded.(type) {
	case map[string]any:
		incidents = []any{t}
	case []any:
		incidents = t
	default:
		return nil, 0, fmt.Errorf("payload of buffer row %d is neither object nor list", doc.ID)
	}

	city := doc.CityName
	if city == "" {
		city = n.defaultCity
	}

	var expansions []store.Expansion
	skipped := 0
	for _, item := range incidents {
		m, ok := item.(map[string]any)
		if !ok {
			n.logger.Warnf("buffer row %d: incident is not an object, skipping", doc.ID)
			skipped++
			continue
		}
		kartID := strings.TrimSpace(getString(m, "KartId", ""))
		if kartID == "" {
			n.logger.Warnf("buffer row %d: incident without KartId, skipping", doc.ID)
			skipped++
			continue
		}
		key := store.IncidentKey{KartID: kartID, RegionID: doc.RegionID, DistrictID: doc.DistrictID}
		expansions = append(expansions, store.Expansion{
			Key:      key,
			Main:     n.expandMain(m, city),
			Vehicles: expandVehicles(m),
			Factors:  expandFactors(m),
			Objects:  expandObjects(m),
		})
	}
	return expansions, skipped, nil
}

func (n *Normalizer) expandMain(m map[string]any, city string) store.IncidentMain {
	info := asMap(m["infoDtp"])
	return store.IncidentMain{
		RowNum:            parseInt(m["rowNum"]),
		DtpDate:           parseDate(getString(m, "date", "")),
		DtpTime:           parseClock(getString(m, "Time", "")),
		District:          getString(m, "District", ""),
		DtpType:           getString(m, "DTP_V", ""),
		Deaths:            parseInt(m["POG"]),
		Wounded:           parseInt(m["RAN"]),
		VehiclesCount:     parseInt(m["K_TS"]),
		ParticipantsCount: parseInt(m["K_UCH"]),
		EmtpNumber:        getString(m, "emtp_number", ""),
		Settlement:        getString(info, "n_p", city),
		Street:            getString(info, "street", ""),
		House:             getString(info, "house", ""),
		Road:              getString(info, "dor", ""),
		Km:                getString(info, "km", ""),
		M:                 getString(info, "m", ""),
		RoadCategory:      getString(info, "k_ul", ""),
		RoadClass:         getString(info, "dor_z", ""),
		Weather:           joinMulti(info["s_pog"]),
		RoadCondition:     getString(info, "change_org_motion", ""),
		Lighting:          getString(info, "osv", ""),
		Severity:          getString(info, "s_dtp", ""),
		CoordW:            parseFloat(info["COORD_W"]),
		CoordL:            parseFloat(info["COORD_L"]),
	}
}

func expandVehicles(m map[string]any) []store.Vehicle {
	info := asMap(m["infoDtp"])
	items := asList(info["ts_info"])
	var vehicles []store.Vehicle
	for _, item := range items {
		vm := asMap(item)
		if vm == nil {
			continue
		}
		v := store.Vehicle{
			VehicleNum:    coerceString(vm["n_ts"]),
			VehicleStatus: getString(vm, "ts_s", ""),
			VehicleType:   getString(vm, "t_ts", ""),
			Brand:         getString(vm, "marka_ts", ""),
			Model:         getString(vm, "m_ts", ""),
			Color:         getString(vm, "color", ""),
			DriveType:     getString(vm, "r_rul", ""),
			Year:          coerceString(vm["g_v"]),
			Damage:        getString(vm, "m_pov", ""),
			TechCondition: getString(vm, "t_n", ""),
			Ownership:     getString(vm, "f_sob", ""),
			OwnerType:     getString(vm, "o_pf", ""),
		}
		for _, pItem := range asList(vm["ts_uch"]) {
			pm := asMap(pItem)
			if pm == nil {
				continue
			}
			v.Participants = append(v.Participants, store.Participant{
				ParticipantType: getString(pm, "K_UCH", ""),
				Violations:      asStrings(pm["NPDD"]),
				Status:          getString(pm, "S_T", ""),
				Gender:          getString(pm, "POL", ""),
				Age:             coerceString(pm["V_ST"]),
				Alcohol:         getString(pm, "ALCO", ""),
				SafetyBelt:      getString(pm, "SAFETY_BELT", ""),
				ParticipantNum:  coerceString(pm["N_UCH"]),
				SeatGroup:       getString(pm, "S_SEAT_GROUP", ""),
				InjuredCardID:   coerceString(pm["INJURED_CARD_ID"]),
				HiddenStatus:    getString(pm, "S_SM", ""),
			})
		}
		vehicles = append(vehicles, v)
	}
	return vehicles
}

func expandFactors(m map[string]any) []store.Factor {
	info := asMap(m["infoDtp"])
	var factors []store.Factor
	for _, factorType := range []string{store.FactorRoadDeficiency, store.FactorRoadCondition} {
		for _, item := range asList(info[factorType]) {
			factors = append(factors, store.Factor{
				FactorType:  factorType,
				Description: joinMulti(item),
			})
		}
	}
	return factors
}

func expandObjects(m map[string]any) []store.SceneObject {
	info := asMap(m["infoDtp"])
	var objects []store.SceneObject
	for _, item := range asList(info["OBJ_DTP"]) {
		objects = append(objects, store.SceneObject{Description: joinMulti(item)})
	}
	return objects
}
