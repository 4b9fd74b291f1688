package db

import (
	"context"
	"database/sql"
	"time"

	apierrors "github.com/veridia/device-trust/pkg/api/errors"
	"github.com/veridia/device-trust/pkg/devices/models/device"
	"github.com/veridia/device-trust/pkg/devices/models/device/store"
	"github.com/opentracing/opentracing-go"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/lib/pq"
)

func NewDB(driverName string, dataSourceName string, logger log.Logger) (store.DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	err = checkDBAlive(db)
	for err != nil {
		level.Warn(logger).Log("msg", "Trying to connect to devices DB")
		time.Sleep(5 * time.Second)
		err = checkDBAlive(db)
	}

	return &DB{db, logger}, nil
}

type DB struct {
	*sql.DB
	logger log.Logger
}

func checkDBAlive(db *sql.DB) error {
	sqlStatement := `
	SELECT WHERE 1=0`
	_, err := db.Query(sqlStatement)
	return err
}

func (db *DB) InsertDevice(ctx context.Context, d device.Device) error {
	parentSpan := opentracing.SpanFromContext(ctx)
	sqlStatement := `
	INSERT INTO devices(id, alias, status, trustLevel, processorId, macAddresses, serialNumber, tpmPresent, osName, osVersion, lastSeen, enrolledAt, enrolledVia)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`
	span := opentracing.StartSpan("device-trust: insert device "+d.Id+" in database", opentracing.ChildOf(parentSpan.Context()))
	_, err := db.Exec(sqlStatement,
		d.Id, d.Alias, d.Status, d.TrustLevel,
		d.Fingerprint.ProcessorId, pq.Array(d.Fingerprint.MacAddresses), d.Fingerprint.SerialNumber,
		d.Fingerprint.TpmPresent, d.Fingerprint.OsName, d.Fingerprint.OsVersion,
		d.LastSeen, d.EnrolledAt, d.EnrolledVia,
	)
	span.Finish()
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not insert device "+d.Id+" in database")
		return &apierrors.DuplicateResourceError{ResourceType: "DEVICE", ResourceId: d.Id}
	}
	level.Info(db.logger).Log("msg", "Device "+d.Id+" inserted in database")
	return nil
}

func (db *DB) SelectDeviceById(ctx context.Context, id string) (device.Device, error) {
	parentSpan := opentracing.SpanFromContext(ctx)
	sqlStatement := `
	SELECT id, alias, status, trustLevel, processorId, macAddresses, serialNumber, tpmPresent, osName, osVersion, lastSeen, enrolledAt, enrolledVia
	FROM devices
	WHERE id = $1;
	`
	span := opentracing.StartSpan("device-trust: obtain device "+id+" from database", opentracing.ChildOf(parentSpan.Context()))
	row := db.QueryRow(sqlStatement, id)
	span.Finish()

	var d device.Device
	var macs pq.StringArray
	err := row.Scan(&d.Id, &d.Alias, &d.Status, &d.TrustLevel,
		&d.Fingerprint.ProcessorId, &macs, &d.Fingerprint.SerialNumber,
		&d.Fingerprint.TpmPresent, &d.Fingerprint.OsName, &d.Fingerprint.OsVersion,
		&d.LastSeen, &d.EnrolledAt, &d.EnrolledVia)
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not obtain device "+id+" from database")
		return device.Device{}, &apierrors.ResourceNotFoundError{ResourceType: "DEVICE", ResourceId: id}
	}
	d.Fingerprint.MacAddresses = macs

	certs, err := db.SelectCertsByDeviceId(ctx, id)
	if err != nil {
		return device.Device{}, err
	}
	d.Certificates = certs
	return d, nil
}

func (db *DB) SelectAllDevices(ctx context.Context) (device.Devices, error) {
	parentSpan := opentracing.SpanFromContext(ctx)
	sqlStatement := `
	SELECT id, alias, status, trustLevel, processorId, macAddresses, serialNumber, tpmPresent, osName, osVersion, lastSeen, enrolledAt, enrolledVia
	FROM devices;
	`
	span := opentracing.StartSpan("device-trust: obtain devices from database", opentracing.ChildOf(parentSpan.Context()))
	rows, err := db.Query(sqlStatement)
	span.Finish()
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not obtain devices from database or the database is empty")
		return device.Devices{}, err
	}
	defer rows.Close()

	var devices device.Devices
	for rows.Next() {
		var d device.Device
		var macs pq.StringArray
		err := rows.Scan(&d.Id, &d.Alias, &d.Status, &d.TrustLevel,
			&d.Fingerprint.ProcessorId, &macs, &d.Fingerprint.SerialNumber,
			&d.Fingerprint.TpmPresent, &d.Fingerprint.OsName, &d.Fingerprint.OsVersion,
			&d.LastSeen, &d.EnrolledAt, &d.EnrolledVia)
		if err != nil {
			level.Error(db.logger).Log("err", err, "msg", "Unable to read database device row")
			return device.Devices{}, err
		}
		d.Fingerprint.MacAddresses = macs
		devices.Devices = append(devices.Devices, d)
	}
	return devices, nil
}

func (db *DB) UpdateDeviceStatusById(ctx context.Context, id string, status string) error {
	parentSpan := opentracing.SpanFromContext(ctx)
	sqlStatement := `
	UPDATE devices
	SET status = $2
	WHERE id = $1;
	`
	span := opentracing.StartSpan("device-trust: update device "+id+" status to "+status, opentracing.ChildOf(parentSpan.Context()))
	res, err := db.Exec(sqlStatement, id, status)
	span.Finish()
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not update device "+id+" status in database")
		return err
	}
	count, _ := res.RowsAffected()
	if count <= 0 {
		return &apierrors.ResourceNotFoundError{ResourceType: "DEVICE", ResourceId: id}
	}
	return nil
}

func (db *DB) UpdateDeviceTrustLevelById(ctx context.Context, id string, trustLevel string) error {
	sqlStatement := `
	UPDATE devices
	SET trustLevel = $2
	WHERE id = $1;
	`
	res, err := db.Exec(sqlStatement, id, trustLevel)
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not update device "+id+" trust level in database")
		return err
	}
	count, _ := res.RowsAffected()
	if count <= 0 {
		return &apierrors.ResourceNotFoundError{ResourceType: "DEVICE", ResourceId: id}
	}
	return nil
}

func (db *DB) UpdateDeviceLastSeen(ctx context.Context, id string, lastSeen int64) error {
	sqlStatement := `
	UPDATE devices
	SET lastSeen = $2
	WHERE id = $1;
	`
	res, err := db.Exec(sqlStatement, id, time.Unix(lastSeen, 0).UTC())
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not update device "+id+" last seen in database")
		return err
	}
	count, _ := res.RowsAffected()
	if count <= 0 {
		return &apierrors.ResourceNotFoundError{ResourceType: "DEVICE", ResourceId: id}
	}
	return nil
}

func (db *DB) InsertCert(ctx context.Context, c device.DeviceCert) error {
	parentSpan := opentracing.SpanFromContext(ctx)
	sqlStatement := `
	INSERT INTO device_certs(id, deviceId, subject, issuer, serialNumber, thumbprint, validFrom, validTo, status)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	span := opentracing.StartSpan("device-trust: insert certificate "+c.SerialNumber+" for device "+c.DeviceId, opentracing.ChildOf(parentSpan.Context()))
	_, err := db.Exec(sqlStatement, c.Id, c.DeviceId, c.Subject, c.Issuer, c.SerialNumber, c.Thumbprint, c.ValidFrom, c.ValidTo, c.Status)
	span.Finish()
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not insert certificate for device "+c.DeviceId+" in database")
		return err
	}
	return nil
}

func (db *DB) SelectCertsByDeviceId(ctx context.Context, deviceId string) ([]device.DeviceCert, error) {
	sqlStatement := `
	SELECT id, deviceId, subject, issuer, serialNumber, thumbprint, validFrom, validTo, status
	FROM device_certs
	WHERE deviceId = $1;
	`
	rows, err := db.Query(sqlStatement, deviceId)
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not obtain certificates for device "+deviceId+" from database")
		return nil, err
	}
	defer rows.Close()

	certs := make([]device.DeviceCert, 0)
	for rows.Next() {
		var c device.DeviceCert
		err := rows.Scan(&c.Id, &c.DeviceId, &c.Subject, &c.Issuer, &c.SerialNumber, &c.Thumbprint, &c.ValidFrom, &c.ValidTo, &c.Status)
		if err != nil {
			level.Error(db.logger).Log("err", err, "msg", "Unable to read database certificate row")
			return nil, err
		}
		certs = append(certs, c)
	}
	return certs, nil
}

func (db *DB) UpdateCertStatusById(ctx context.Context, certId string, status string) error {
	sqlStatement := `
	UPDATE device_certs
	SET status = $2
	WHERE id = $1;
	`
	res, err := db.Exec(sqlStatement, certId, status)
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not update certificate "+certId+" status in database")
		return err
	}
	count, _ := res.RowsAffected()
	if count <= 0 {
		return &apierrors.ResourceNotFoundError{ResourceType: "CERTIFICATE", ResourceId: certId}
	}
	return nil
}

func (db *DB) InsertLifecycleEvent(ctx context.Context, e device.LifecycleEvent) error {
	parentSpan := opentracing.SpanFromContext(ctx)
	sqlStatement := `
	INSERT INTO device_lifecycle_events(id, deviceId, eventType, previousStatus, newStatus, initiator, reason, timestamp, certsRevoked, accessRevoked, dataWipeRequired)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	span := opentracing.StartSpan("device-trust: insert lifecycle event for device "+e.DeviceId, opentracing.ChildOf(parentSpan.Context()))
	_, err := db.Exec(sqlStatement, e.Id, e.DeviceId, e.EventType, e.PreviousStatus, e.NewStatus, e.Initiator, e.Reason, e.Timestamp,
		e.Impact.CertificatesRevoked, e.Impact.AccessRevoked, e.Impact.DataWipeRequired)
	span.Finish()
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not insert lifecycle event for device "+e.DeviceId+" in database")
		return err
	}
	return nil
}

func (db *DB) SelectLifecycleEventsByDeviceId(ctx context.Context, deviceId string) (device.LifecycleEvents, error) {
	sqlStatement := `
	SELECT id, deviceId, eventType, previousStatus, newStatus, initiator, reason, timestamp, certsRevoked, accessRevoked, dataWipeRequired
	FROM device_lifecycle_events
	WHERE deviceId = $1
	ORDER BY timestamp ASC;
	`
	rows, err := db.Query(sqlStatement, deviceId)
	if err != nil {
		level.Error(db.logger).Log("err", err, "msg", "Could not obtain lifecycle events for device "+deviceId+" from database")
		return device.LifecycleEvents{}, err
	}
	defer rows.Close()

	var events device.LifecycleEvents
	for rows.Next() {
		var e device.LifecycleEvent
		err := rows.Scan(&e.Id, &e.DeviceId, &e.EventType, &e.PreviousStatus, &e.NewStatus, &e.Initiator, &e.Reason, &e.Timestamp,
			&e.Impact.CertificatesRevoked, &e.Impact.AccessRevoked, &e.Impact.DataWipeRequired)
		if err != nil {
			level.Error(db.logger).Log("err", err, "msg", "Unable to read database lifecycle event row")
			return device.LifecycleEvents{}, err
		}
		events.Events = append(events.Events, e)
	}
	return events, nil
}
