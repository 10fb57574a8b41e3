package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_records_run_packet ON records (run_id, packet_id);`

const (
	insertRunSQL = `
INSERT INTO runs (
                  start_time,
                  tx_source,
                  rx_source,
                  config)
VALUES (?, ?, ?, ?)`

	selectRunSQL = `
SELECT 
    id, 
    start_time, 
    tx_source, 
    rx_source, 
    config 
FROM runs 
WHERE 
    id = ?`

	selectRunsSQL = `
SELECT 
    id, 
    start_time, 
    tx_source, 
    rx_source, 
    config 
FROM runs
ORDER BY start_time, id`

	insertRecordSQL = `
INSERT INTO records (
                     run_id,
                     packet_id,
                     success,
                     tx_latitude,
                     tx_longitude,
                     tx_power,
                     rx_latitude,
                     rx_longitude,
                     distance,
                     rssi,
                     snr,
                     measured_loss,
                     modeled_loss)
VALUES `

	selectRecordsSQL = `
SELECT 
    packet_id,
    success,
    tx_latitude,
    tx_longitude,
    tx_power,
    rx_latitude,
    rx_longitude,
    distance,
    rssi,
    snr,
    measured_loss,
    modeled_loss
FROM records
WHERE 
    run_id = ?
ORDER BY id`

	upsertModelSQL = `
INSERT INTO models (
                    run_id,
                    ref_distance,
                    ref_loss,
                    gamma,
                    sigma)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET 
    ref_distance = excluded.ref_distance,
    ref_loss     = excluded.ref_loss,
    gamma        = excluded.gamma,
    sigma        = excluded.sigma`

	selectModelSQL = `
SELECT 
    ref_distance,
    ref_loss,
    gamma,
    sigma
FROM models
WHERE 
    run_id = ?`

	insertBinSQL = `
INSERT INTO bins (
                  run_id,
                  bin_index,
                  lower_edge,
                  upper_edge,
                  transmitted,
                  received)
VALUES `

	selectBinsSQL = `
SELECT 
    bin_index,
    lower_edge,
    upper_edge,
    transmitted,
    received
FROM bins
WHERE 
    run_id = ?
ORDER BY bin_index`
)
