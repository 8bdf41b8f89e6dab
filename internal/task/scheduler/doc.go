// Package scheduler runs keyed periodic jobs on a robfig/cron engine.
//
// Each job is identified by a string key; registering an existing key
// replaces its trigger and body. Triggers are plain cron.Schedule values, so
// window gating and startup spread compose as schedule wrappers (see
// BuildTrigger). A job never runs more than Config.MaxConcurrent times at
// once; ticks arriving above that are dropped, not queued.
package scheduler
