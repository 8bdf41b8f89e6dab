package config

import (
	"reflect"
	"slices"
)

// Change lists the top-level sections that differ between two configs.
type Change struct {
	Sections []string
	// Restart holds the changed sections that only take effect after a
	// restart.
	Restart []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// OwnersChanged reports whether telegram.owner_user_ids differs.
func OwnersChanged(oldCfg, newCfg *Config) bool {
	return !slices.Equal(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs)
}

// Diff compares oldCfg and newCfg section by section. Logging, the log group
// and owner ids apply live; everything else needs a restart.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	note := func(name string, changed, live bool) {
		if !changed {
			return
		}
		ch.Sections = append(ch.Sections, name)
		if !live {
			ch.Restart = append(ch.Restart, name)
		}
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	note("telegram.owner_user_ids", OwnersChanged(oldCfg, newCfg), true)
	note("telegram.group_log", ot.GroupLog != nt.GroupLog, true)
	note("telegram", ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout, false)
	note("logging", !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging), true)
	note("scheduler", oldCfg.Scheduler != newCfg.Scheduler, false)
	note("tracker", !reflect.DeepEqual(oldCfg.Tracker, newCfg.Tracker), false)
	note("fetch", oldCfg.Fetch != newCfg.Fetch, false)
	note("acquire", !reflect.DeepEqual(oldCfg.Acquire, newCfg.Acquire), false)
	note("delivery", oldCfg.Delivery != newCfg.Delivery, false)
	note("storage", oldCfg.Storage != newCfg.Storage, false)
	note("ops", oldCfg.Ops != newCfg.Ops, false)
	return ch
}
