package automod

import (
	"github.com/antigcast/antigcast/automod/countstore"
	"github.com/antigcast/antigcast/automod/engine"
	"github.com/antigcast/antigcast/automod/rulestore"
)

type Engine = engine.Engine
type Message = engine.Message
type Decision = engine.Decision
type Reason = engine.Reason
type Effects = engine.Effects
type Signals = engine.Signals
type Patterns = engine.Patterns
type ChatStats = engine.ChatStats

type RuleSet = rulestore.RuleSet
type RuleStore = rulestore.RuleStore
type ListKind = rulestore.ListKind

const (
	ReasonDuplicate  = engine.ReasonDuplicate
	ReasonDenylisted = engine.ReasonDenylisted
	ReasonDisabled   = engine.ReasonDisabled
	ReasonClean      = engine.ReasonClean

	DenyList  = rulestore.DenyList
	AllowList = rulestore.AllowList

	PeriodTotal = countstore.PeriodTotal
	PeriodDay   = countstore.PeriodDay
	PeriodHour  = countstore.PeriodHour
)
