// Package flatten walks a nested StepEvent forest and yields its leaf
// message events in pre-order.
package flatten

import (
	"strings"

	"ai-chat-transcript-service/internal/models"
)

// Predicate selects the events kept by Flatten.
type Predicate func(ev models.StepEvent) bool

// IsMessage keeps events whose type mentions "message".
func IsMessage(ev models.StepEvent) bool {
	return strings.Contains(ev.Type, "message")
}

// Flatten returns the events of forest matching pred, in pre-order: a node
// comes before its children and children keep their order. The input is not
// modified. A nil pred means IsMessage.
func Flatten(forest []models.StepEvent, pred Predicate) []models.StepEvent {
	if pred == nil {
		pred = IsMessage
	}
	return fold(nil, forest, pred)
}

func fold(acc []models.StepEvent, nodes []models.StepEvent, pred Predicate) []models.StepEvent {
	for _, node := range nodes {
		if pred(node) {
			leaf := node
			leaf.Steps = nil
			acc = append(acc, leaf)
		}
		if len(node.Steps) > 0 {
			acc = fold(acc, node.Steps, pred)
		}
	}
	return acc
}
