// Package scheduler runs periodic maintenance jobs on robfig/cron.
//
// Schedules accept cron expressions ("0 4 * * *", "@daily"), Go durations
// ("6h") and HH:MM intervals ("02:30"). Jobs never overlap themselves and a
// panicking job is recovered and logged.
package scheduler
