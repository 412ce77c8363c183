package datastore

// CountsBySeverity returns record counts grouped by severity tier.
func (ds *DataStore) CountsBySeverity() ([]SeverityCount, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var counts []SeverityCount
	err := ds.DB.Model(&Incident{}).
		Select("severity, COUNT(*) as count").
		Group("severity").
		Scan(&counts).Error
	if err != nil {
		return nil, dbError(err, "counts_by_severity")
	}
	return counts, nil
}

// CountsByStatus returns record counts grouped by status.
func (ds *DataStore) CountsByStatus() ([]StatusCount, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var counts []StatusCount
	err := ds.DB.Model(&Incident{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, dbError(err, "counts_by_status")
	}
	return counts, nil
}

// TotalIncidents returns the total number of records in the registry.
func (ds *DataStore) TotalIncidents() (int64, error) {
	if err := ds.ready(); err != nil {
		return 0, err
	}
	var count int64
	if err := ds.DB.Model(&Incident{}).Count(&count).Error; err != nil {
		return 0, dbError(err, "total_incidents")
	}
	return count, nil
}

// AverageResolutionDays returns the mean time from report to fix, in days,
// over all fixed records. Zero when nothing has been fixed yet. The average
// is computed in Go so the query stays portable across SQLite and MySQL.
func (ds *DataStore) AverageResolutionDays() (float64, error) {
	if err := ds.ready(); err != nil {
		return 0, err
	}
	var fixed []Incident
	err := ds.DB.Select("created_at", "fixed_at").
		Where("status = ? AND fixed_at IS NOT NULL", StatusFixed).
		Find(&fixed).Error
	if err != nil {
		return 0, dbError(err, "average_resolution_days")
	}
	if len(fixed) == 0 {
		return 0, nil
	}

	var totalDays float64
	for i := range fixed {
		totalDays += fixed[i].FixedAt.Sub(fixed[i].CreatedAt).Hours() / 24
	}
	return totalDays / float64(len(fixed)), nil
}

// RecentIncidents returns the newest records, capped at limit.
func (ds *DataStore) RecentIncidents(limit int) ([]Incident, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	var incidents []Incident
	err := ds.DB.Order("created_at DESC").Limit(limit).Find(&incidents).Error
	if err != nil {
		return nil, dbError(err, "recent_incidents")
	}
	return incidents, nil
}
