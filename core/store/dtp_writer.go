package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EntityWriter applies one incident's expansion to the five entity tables.
// The replace is unconditional: prior rows for the key are deleted even when
// the new expansion carries no child rows, so a revised incident that lost
// its vehicles ends up with zero vehicle rows.
type EntityWriter interface {
	// Write must run inside the caller's transaction; a failure leaves the
	// prior expansion untouched once the caller rolls back.
	Write(ctx context.Context, tx *sql.Tx, exp *Expansion) error
}

type entityWriter struct {
	db *DB
}

func NewEntityWriter(db *DB) EntityWriter {
	return &entityWriter{db: db}
}

func (w *entityWriter) Write(ctx context.Context, tx *sql.Tx, exp *Expansion) error {
	key := exp.Key
	for _, table := range []string{"dtp_main", "dtp_vehicles", "dtp_participants", "dtp_factors", "dtp_objects"} {
		if _, err := tx.ExecContext(ctx, w.db.Rebind(
			`DELETE FROM `+table+` WHERE kart_id = ? AND region_id = ? AND district_id = ?`),
			key.KartID, key.RegionID, key.DistrictID); err != nil {
			return fmt.Errorf("delete %s for %s: %w", table, key.KartID, err)
		}
	}
	if err := w.insertMain(ctx, tx, key, &exp.Main); err != nil {
		return err
	}
	for i := range exp.Vehicles {
		if err := w.insertVehicle(ctx, tx, key, &exp.Vehicles[i]); err != nil {
			return err
		}
	}
	for i := range exp.Factors {
		if err := w.insertFactor(ctx, tx, key, &exp.Factors[i]); err != nil {
			return err
		}
	}
	for i := range exp.Objects {
		if err := w.insertObject(ctx, tx, key, &exp.Objects[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *entityWriter) insertMain(ctx context.Context, tx *sql.Tx, key IncidentKey, m *IncidentMain) error {
	_, err := tx.ExecContext(ctx, w.db.Rebind(`
		INSERT INTO dtp_main (
			kart_id, region_id, district_id, row_num, dtp_date, dtp_time, district,
			dtp_type, deaths, wounded, vehicles_count, participants_count, emtp_number,
			settlement, street, house, road, km, m, road_category, road_class,
			weather, road_condition, lighting, dtp_severity, coord_w, coord_l, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		key.KartID, key.RegionID, key.DistrictID, m.RowNum,
		fmtDate(m.DtpDate), fmtClock(m.DtpTime), m.District,
		m.DtpType, m.Deaths, m.Wounded, m.VehiclesCount, m.ParticipantsCount, m.EmtpNumber,
		m.Settlement, m.Street, m.House, m.Road, m.Km, m.M, m.RoadCategory, m.RoadClass,
		m.Weather, m.RoadCondition, m.Lighting, m.Severity, m.CoordW, m.CoordL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert dtp_main for %s: %w", key.KartID, err)
	}
	return nil
}

func (w *entityWriter) insertVehicle(ctx context.Context, tx *sql.Tx, key IncidentKey, v *Vehicle) error {
	_, err := tx.ExecContext(ctx, w.db.Rebind(`
		INSERT INTO dtp_vehicles (
			kart_id, region_id, district_id, vehicle_num, vehicle_status, vehicle_type,
			brand, model, color, drive_type, year, damage, tech_condition,
			ownership, owner_type, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		key.KartID, key.RegionID, key.DistrictID, v.VehicleNum, v.VehicleStatus, v.VehicleType,
		v.Brand, v.Model, v.Color, v.DriveType, v.Year, v.Damage, v.TechCondition,
		v.Ownership, v.OwnerType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert dtp_vehicles for %s/%s: %w", key.KartID, v.VehicleNum, err)
	}
	for i := range v.Participants {
		if err := w.insertParticipant(ctx, tx, key, v.VehicleNum, &v.Participants[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *entityWriter) insertParticipant(ctx context.Context, tx *sql.Tx, key IncidentKey, vehicleNum string, p *Participant) error {
	violations, err := json.Marshal(emptyAsList(p.Violations))
	if err != nil {
		return fmt.Errorf("encode violations for %s: %w", key.KartID, err)
	}
	_, err = tx.ExecContext(ctx, w.db.Rebind(`
		INSERT INTO dtp_participants (
			kart_id, region_id, district_id, vehicle_num, participant_type, violations,
			status, gender, age, alcohol, safety_belt, participant_num, seat_group,
			injured_card_id, hidden_status, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		key.KartID, key.RegionID, key.DistrictID, vehicleNum, p.ParticipantType, string(violations),
		p.Status, p.Gender, p.Age, p.Alcohol, p.SafetyBelt, p.ParticipantNum, p.SeatGroup,
		p.InjuredCardID, p.HiddenStatus, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert dtp_participants for %s/%s: %w", key.KartID, vehicleNum, err)
	}
	return nil
}

func (w *entityWriter) insertFactor(ctx context.Context, tx *sql.Tx, key IncidentKey, f *Factor) error {
	_, err := tx.ExecContext(ctx, w.db.Rebind(`
		INSERT INTO dtp_factors (kart_id, region_id, district_id, factor_type, factor_description, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		key.KartID, key.RegionID, key.DistrictID, f.FactorType, f.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert dtp_factors for %s: %w", key.KartID, err)
	}
	return nil
}

func (w *entityWriter) insertObject(ctx context.Context, tx *sql.Tx, key IncidentKey, o *SceneObject) error {
	_, err := tx.ExecContext(ctx, w.db.Rebind(`
		INSERT INTO dtp_objects (kart_id, region_id, district_id, object_description, updated_at)
		VALUES (?, ?, ?, ?, ?)`),
		key.KartID, key.RegionID, key.DistrictID, o.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert dtp_objects for %s: %w", key.KartID, err)
	}
	return nil
}

func fmtDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func fmtClock(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("15:04")
}

func emptyAsList(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
