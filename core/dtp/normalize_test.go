package dtp

import (
	"reflect"
	"testing"

	"dtp-ingest/core/store"
)

func normalizeOne(t *testing.T, payload string) ([]store.Expansion, int, error) {
	t.Helper()
	n := NewNormalizer("Не указан", nil)
	return n.Normalize(&store.RawDocument{
		ID:         1,
		CityName:   "Лобня",
		RegionID:   "46",
		DistrictID: "46440",
		RawJSON:    payload,
	})
}

func TestNormalizeNestedIncident(t *testing.T) {
	payload := `[{"KartId":"K1", "date":"01.03.2024", "Time":"18:45",
		"infoDtp":{"ts_info":[{"n_ts":"1","ts_uch":[{"K_UCH":"driver"}]}]}}]`
	exps, skipped, err := normalizeOne(t, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	if len(exps) != 1 {
		t.Fatalf("expansions = %d, want 1", len(exps))
	}
	exp := exps[0]
	if exp.Key != (store.IncidentKey{KartID: "K1", RegionID: "46", DistrictID: "46440"}) {
		t.Fatalf("unexpected key %+v", exp.Key)
	}
	if exp.Main.DtpDate == nil || exp.Main.DtpDate.Format("2006-01-02") != "2024-03-01" {
		t.Fatalf("dtp_date = %v, want 2024-03-01", exp.Main.DtpDate)
	}
	if exp.Main.DtpTime == nil || exp.Main.DtpTime.Format("15:04") != "18:45" {
		t.Fatalf("dtp_time = %v, want 18:45", exp.Main.DtpTime)
	}
	if len(exp.Vehicles) != 1 || exp.Vehicles[0].VehicleNum != "1" {
		t.Fatalf("vehicles = %+v", exp.Vehicles)
	}
	if len(exp.Vehicles[0].Participants) != 1 || exp.Vehicles[0].Participants[0].ParticipantType != "driver" {
		t.Fatalf("participants = %+v", exp.Vehicles[0].Participants)
	}
}

func TestNormalizeSingleObjectAndListAreUniform(t *testing.T) {
	object := `{"KartId":"K1"}`
	list := `[{"KartId":"K1"}]`
	a, _, err := normalizeOne(t, object)
	if err != nil {
		t.Fatalf("object payload: %v", err)
	}
	b, _, err := normalizeOne(t, list)
	if err != nil {
		t.Fatalf("list payload: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("object and single-element list must normalize identically")
	}
}

func TestNormalizeSkipsIncidentWithoutKartID(t *testing.T) {
	exps, skipped, err := normalizeOne(t, `{"foo":"bar"}`)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(exps) != 0 {
		t.Fatalf("expected no expansions, got %d", len(exps))
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
}

func TestNormalizeSkipsMalformedSiblingOnly(t *testing.T) {
	payload := `[{"KartId":"A"}, "not an object", {"KartId":"B"}]`
	exps, skipped, err := normalizeOne(t, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(exps) != 2 {
		t.Fatalf("expansions = %d, want 2", len(exps))
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	if exps[0].Key.KartID != "A" || exps[1].Key.KartID != "B" {
		t.Fatalf("wrong incidents survived: %+v", exps)
	}
}

func TestNormalizeRejectsNonDocumentPayload(t *testing.T) {
	if _, _, err := normalizeOne(t, `"just a string"`); err == nil {
		t.Fatalf("scalar payload must be a document-level error")
	}
	if _, _, err := normalizeOne(t, `{invalid`); err == nil {
		t.Fatalf("broken JSON must be a document-level error")
	}
}

func TestNormalizeBestEffortCoercion(t *testing.T) {
	payload := `{"KartId":"K1", "date":"31.02.2024", "Time":"aa:bb",
		"POG":"3", "RAN":"not a number", "K_TS":2,
		"infoDtp":{"COORD_W":"56,0078", "COORD_L":"garbage"}}`
	exps, _, err := normalizeOne(t, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	m := exps[0].Main
	if m.DtpDate != nil {
		t.Fatalf("impossible date must yield nil, got %v", m.DtpDate)
	}
	if m.DtpTime != nil {
		t.Fatalf("unparsable time must yield nil, got %v", m.DtpTime)
	}
	if m.Deaths != 3 {
		t.Fatalf("deaths = %d, want 3 (string digits coerced)", m.Deaths)
	}
	if m.Wounded != 0 {
		t.Fatalf("wounded = %d, want 0 default", m.Wounded)
	}
	if m.VehiclesCount != 2 {
		t.Fatalf("vehicles_count = %d, want 2", m.VehiclesCount)
	}
	if m.CoordW != 56.0078 {
		t.Fatalf("coord_w = %v, want 56.0078 (comma decimal)", m.CoordW)
	}
	if m.CoordL != 0 {
		t.Fatalf("coord_l = %v, want 0 default", m.CoordL)
	}
}

func TestNormalizeViolationsScalarOrList(t *testing.T) {
	scalar := `{"KartId":"K1","infoDtp":{"ts_info":[{"n_ts":"1","ts_uch":[{"NPDD":"п.10.1"}]}]}}`
	list := `{"KartId":"K1","infoDtp":{"ts_info":[{"n_ts":"1","ts_uch":[{"NPDD":["п.10.1"]}]}]}}`
	a, _, _ := normalizeOne(t, scalar)
	b, _, _ := normalizeOne(t, list)
	va := a[0].Vehicles[0].Participants[0].Violations
	vb := b[0].Vehicles[0].Participants[0].Violations
	if !reflect.DeepEqual(va, vb) {
		t.Fatalf("scalar and one-element list must coerce identically: %v vs %v", va, vb)
	}
	if len(va) != 1 || va[0] != "п.10.1" {
		t.Fatalf("violations = %v", va)
	}
}

func TestNormalizeFactorsAndObjects(t *testing.T) {
	payload := `{"KartId":"K1","infoDtp":{
		"ndu":["Отсутствие освещения", ["a","b"]],
		"sdor":"Гололедица",
		"OBJ_DTP":["Опора"]}}`
	exps, _, err := normalizeOne(t, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	factors := exps[0].Factors
	if len(factors) != 3 {
		t.Fatalf("factors = %d, want 3", len(factors))
	}
	if factors[0].FactorType != store.FactorRoadDeficiency || factors[0].Description != "Отсутствие освещения" {
		t.Fatalf("factor[0] = %+v", factors[0])
	}
	if factors[1].Description != "a, b" {
		t.Fatalf("list factor must join with comma, got %q", factors[1].Description)
	}
	if factors[2].FactorType != store.FactorRoadCondition || factors[2].Description != "Гололедица" {
		t.Fatalf("scalar sdor must become one factor, got %+v", factors[2])
	}
	if len(exps[0].Objects) != 1 || exps[0].Objects[0].Description != "Опора" {
		t.Fatalf("objects = %+v", exps[0].Objects)
	}
}

func TestNormalizeSettlementFallsBackToCity(t *testing.T) {
	exps, _, _ := normalizeOne(t, `{"KartId":"K1"}`)
	if exps[0].Main.Settlement != "Лобня" {
		t.Fatalf("settlement = %q, want buffer city fallback", exps[0].Main.Settlement)
	}
	n := NewNormalizer("Не указан", nil)
	exps2, _, err := n.Normalize(&store.RawDocument{RawJSON: `{"KartId":"K2"}`, RegionID: "27", DistrictID: "27401"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if exps2[0].Main.Settlement != "Не указан" {
		t.Fatalf("settlement = %q, want configured default", exps2[0].Main.Settlement)
	}
}

func TestNormalizeYearAndAgeNumberCoercion(t *testing.T) {
	payload := `{"KartId":"K1","infoDtp":{"ts_info":[{"n_ts":1,"g_v":2015,
		"ts_uch":[{"K_UCH":"driver","V_ST":34,"N_UCH":2}]}]}}`
	exps, _, err := normalizeOne(t, payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	v := exps[0].Vehicles[0]
	if v.VehicleNum != "1" || v.Year != "2015" {
		t.Fatalf("vehicle num/year coercion: %+v", v)
	}
	p := v.Participants[0]
	if p.Age != "34" || p.ParticipantNum != "2" {
		t.Fatalf("participant number coercion: %+v", p)
	}
}
