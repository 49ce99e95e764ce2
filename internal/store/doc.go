// Package store persists homesim state in SQLite.
//
// SQLiteStore is the single persistence gateway: devices, sensors, the
// ordered task list, automation links and the device state history. The
// scheduler and the automation engine see it only through the narrow
// interfaces they declare, so neither imports this package.
//
// Loading is lenient. A malformed row (bad timestamp, unknown repeat,
// inverted thresholds, dangling link) is skipped and reported through the
// notifier; the rest of the data still loads. Writes return errors and the
// caller decides how to report them.
//
// Times of scheduled tasks are stored as "2006-01-02 15:04" in the
// configured location. Audit timestamps are RFC 3339 in UTC.
package store
