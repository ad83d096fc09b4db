package logger

// LogResourceExport logs the outcome of exporting a single resource
func LogResourceExport(resource string, records int, success bool, err error) {
	fields := map[string]interface{}{
		"resource": resource,
		"records":  records,
		"success":  success,
	}

	logger := GetLogger().WithFields(fields)

	if err != nil {
		logger.WithError(err).Error("Resource export failed")
	} else if success {
		logger.Info("Resource export completed")
	} else {
		logger.Warn("Resource export skipped")
	}
}

// LogBatchProgress logs per-batch export progress
func LogBatchProgress(resource string, batch, records int) {
	GetLogger().WithFields(map[string]interface{}{
		"resource": resource,
		"batch":    batch,
		"records":  records,
	}).Info("Batch written")
}
