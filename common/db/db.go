package db

import (
	"buildhub/common/config"
	"buildhub/common/db/models"
	"buildhub/lib/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func NewDB(config *config.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if config.InMemory {
		dialector = sqlite.Open("file::memory:?cache=shared")
	} else {
		dialector = postgres.Open(config.Dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, logger.Error("Can't open database with dsn=\"%v\" because of %v", config.Dsn, err)
	}
	if err = db.AutoMigrate(&models.BuildResult{}); err != nil {
		return nil, logger.Error("Can't migrate BuildResult: %v", err)
	}
	if err = db.AutoMigrate(&models.BuildFeedback{}); err != nil {
		return nil, logger.Error("Can't migrate BuildFeedback: %v", err)
	}
	if err = db.AutoMigrate(&models.TestCase{}); err != nil {
		return nil, logger.Error("Can't migrate TestCase: %v", err)
	}
	if err = db.AutoMigrate(&models.ExerciseBuildSettings{}); err != nil {
		return nil, logger.Error("Can't migrate ExerciseBuildSettings: %v", err)
	}
	return db, err
}
