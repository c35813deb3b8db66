package mysql

// Seeding never clobbers a hold or a confirmed booking: blocked and booked
// days keep their status even if the host re-opens the range.
const upsertRecordSQL = `
INSERT INTO availability
  (property_id, day, status, holder_id)
VALUES
  (?, ?, ?, NULL)
ON DUPLICATE KEY UPDATE
  status     = IF(availability.status IN ('blocked','booked'), availability.status, VALUES(status)),
  holder_id  = IF(availability.status IN ('blocked','booked'), availability.holder_id, NULL),
  updated_at = CURRENT_TIMESTAMP
`

// Row-locks the date set inside the transition transaction; the count check
// catches days the host never opened.
const lockRowsSQL = `
SELECT COUNT(*) FROM availability
WHERE property_id = ? AND day IN (%s)
FOR UPDATE
`

const updateStatusSQL = `
UPDATE availability
SET status = ?, holder_id = ?, updated_at = CURRENT_TIMESTAMP
WHERE property_id = ? AND day IN (%s)
`

const loadCalendarSQL = `
SELECT day, status, holder_id
FROM availability
WHERE property_id = ? AND day >= ? AND day < ?
ORDER BY day
`

const insertBookingSQL = `
INSERT INTO bookings
  (id, property_id, holder_id, check_in, check_out, guests,
   contact_name, contact_email, contact_phone, payment_ref, total_cents, currency, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const getBookingSQL = `
SELECT id, property_id, holder_id, check_in, check_out, guests,
       contact_name, contact_email, contact_phone, payment_ref, total_cents, currency, created_at
FROM bookings
WHERE id = ?
`
