package service

import (
	"encoding/json"
	"reflect"
	"sort"

	"squadkeeper.io/keeper/internal/domain"
)

// BuildMigrationReport diffs two templates' member configs.
//
// Capabilities are reported as member names plus "member.capability" pairs.
// Behavior flags are compared per member present in both templates, keyed
// "member.flag". A change is breaking when any capability disappears or the
// category changes. Unparseable member configs are treated as empty.
func BuildMigrationReport(from, to *domain.Template) *domain.MigrationReport {
	report := &domain.MigrationReport{
		FromTemplate:        from.Ref(),
		ToTemplate:          to.Ref(),
		AddedCapabilities:   []string{},
		RemovedCapabilities: []string{},
		ChangedFlags:        []domain.FlagChange{},
	}

	fromMembers := decodeMembers(from.MemberConfigs)
	toMembers := decodeMembers(to.MemberConfigs)

	fromCaps := capabilitySet(fromMembers)
	toCaps := capabilitySet(toMembers)
	for c := range toCaps {
		if _, ok := fromCaps[c]; !ok {
			report.AddedCapabilities = append(report.AddedCapabilities, c)
		}
	}
	for c := range fromCaps {
		if _, ok := toCaps[c]; !ok {
			report.RemovedCapabilities = append(report.RemovedCapabilities, c)
		}
	}
	sort.Strings(report.AddedCapabilities)
	sort.Strings(report.RemovedCapabilities)

	for name, fm := range fromMembers {
		tm, ok := toMembers[name]
		if !ok {
			continue
		}
		keys := make(map[string]struct{}, len(fm.Behavior)+len(tm.Behavior))
		for k := range fm.Behavior {
			keys[k] = struct{}{}
		}
		for k := range tm.Behavior {
			keys[k] = struct{}{}
		}
		for k := range keys {
			a, b := fm.Behavior[k], tm.Behavior[k]
			if reflect.DeepEqual(a, b) {
				continue
			}
			report.ChangedFlags = append(report.ChangedFlags, domain.FlagChange{Key: name + "." + k, From: a, To: b})
		}
	}
	sort.Slice(report.ChangedFlags, func(i, j int) bool {
		return report.ChangedFlags[i].Key < report.ChangedFlags[j].Key
	})

	report.HasBreakingChanges = len(report.RemovedCapabilities) > 0 || from.Category != to.Category
	return report
}

func decodeMembers(raw json.RawMessage) map[string]domain.MemberConfig {
	out := make(map[string]domain.MemberConfig)
	if len(raw) == 0 {
		return out
	}
	var members []domain.MemberConfig
	if err := json.Unmarshal(raw, &members); err != nil {
		return out
	}
	for _, m := range members {
		if m.Name != "" {
			out[m.Name] = m
		}
	}
	return out
}

func capabilitySet(members map[string]domain.MemberConfig) map[string]struct{} {
	set := make(map[string]struct{})
	for name, m := range members {
		set[name] = struct{}{}
		for _, c := range m.Capabilities {
			set[name+"."+c] = struct{}{}
		}
	}
	return set
}
