package models

import "time"

// TrainingRun mirrors a row written by the training CLI.
type TrainingRun struct {
	ID         string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	Artifact   string    `gorm:"column:artifact" json:"artifact"`
	Target     string    `gorm:"column:target" json:"target"`
	Split      string    `gorm:"column:split" json:"split"`
	MAE        float64   `gorm:"column:mae" json:"mae"`
	RMSE       float64   `gorm:"column:rmse" json:"rmse"`
	TrainRows  int       `gorm:"column:train_rows" json:"train_rows"`
	TestRows   int       `gorm:"column:test_rows" json:"test_rows"`
	Trees      int       `gorm:"column:trees" json:"trees"`
	Seed       int64     `gorm:"column:seed" json:"seed"`
	DurationMS int64     `gorm:"column:duration_ms" json:"duration_ms"`
}

func (TrainingRun) TableName() string { return "training_runs" }
