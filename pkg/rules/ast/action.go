package ast

import "fmt"

// ArtifactKind identifies one of the three derived-artifact categories.
type ArtifactKind string

const (
	ArtifactBaseline ArtifactKind = "baseline"
	ArtifactPackage  ArtifactKind = "package"
	ArtifactTemplate ArtifactKind = "template"
)

// ActionType represents the type of an action in a rule.
// Actions contribute to the derived scope when a rule's condition matches.
type ActionType string

const (
	ActionTypeApplyBaseline   ActionType = "apply_baseline"
	ActionTypeApplyPackage    ActionType = "apply_package"
	ActionTypeApplyTemplate   ActionType = "apply_template"
	ActionTypeExcludeBaseline ActionType = "exclude_baseline"
	ActionTypeExcludePackage  ActionType = "exclude_package"
	ActionTypeExcludeTemplate ActionType = "exclude_template"
	ActionTypeSetField        ActionType = "set_field"
	ActionTypeTag             ActionType = "tag"
)

// Action represents one action of a rule.
// Include/exclude actions name an artifact code; set_field and tag actions
// name a field and a value.
type Action struct {
	Type  ActionType // Action discriminator
	Code  string     // Artifact code (include/exclude actions)
	Field string     // Field or tag name (set_field/tag actions)
	Value string     // Assigned value (set_field/tag actions)
}

// ArtifactKind returns the artifact category an include/exclude action
// targets. ok is false for set_field and tag actions.
func (a *Action) ArtifactKind() (ArtifactKind, bool) {
	switch a.Type {
	case ActionTypeApplyBaseline, ActionTypeExcludeBaseline:
		return ArtifactBaseline, true
	case ActionTypeApplyPackage, ActionTypeExcludePackage:
		return ArtifactPackage, true
	case ActionTypeApplyTemplate, ActionTypeExcludeTemplate:
		return ArtifactTemplate, true
	default:
		return "", false
	}
}

// IsInclude returns true for apply_* actions.
func (a *Action) IsInclude() bool {
	switch a.Type {
	case ActionTypeApplyBaseline, ActionTypeApplyPackage, ActionTypeApplyTemplate:
		return true
	}
	return false
}

// IsExclude returns true for exclude_* actions.
func (a *Action) IsExclude() bool {
	switch a.Type {
	case ActionTypeExcludeBaseline, ActionTypeExcludePackage, ActionTypeExcludeTemplate:
		return true
	}
	return false
}

// Validate checks that the action is well-formed for its type.
func (a *Action) Validate() error {
	switch a.Type {
	case ActionTypeApplyBaseline, ActionTypeApplyPackage, ActionTypeApplyTemplate,
		ActionTypeExcludeBaseline, ActionTypeExcludePackage, ActionTypeExcludeTemplate:
		if a.Code == "" {
			return fmt.Errorf("action %q requires an artifact code", a.Type)
		}
		return nil

	case ActionTypeSetField, ActionTypeTag:
		if a.Field == "" {
			return fmt.Errorf("action %q requires a field name", a.Type)
		}
		return nil

	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// String renders the action for reason traces.
func (a *Action) String() string {
	if _, ok := a.ArtifactKind(); ok {
		return fmt.Sprintf("%s(%s)", a.Type, a.Code)
	}
	return fmt.Sprintf("%s(%s=%s)", a.Type, a.Field, a.Value)
}
