package models

import "gorm.io/gorm"

// TestCase is one entry of an exercise's active test case catalogue.
// The catalogue itself is owned by the exercise collaborator; this is the
// read model the converter matches reported test names against.
type TestCase struct {
	gorm.Model
	ExerciseID uint64 `gorm:"index"`
	Name       string
	Active     bool
	Weight     float64
}

// Exercise level static analysis switch, stored alongside the catalogue.
type ExerciseBuildSettings struct {
	gorm.Model
	ExerciseID                uint64 `gorm:"uniqueIndex"`
	StaticCodeAnalysisEnabled bool
}
