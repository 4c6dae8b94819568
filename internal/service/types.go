package service

import "github.com/popeskul/chatrelay/internal/api"

type HealthStatus struct {
	Status           api.HealthResponseStatus           `json:"status"`
	DispatcherStatus api.HealthResponseDispatcherStatus `json:"dispatcher_status"`
	DatabaseStatus   api.HealthResponseDatabaseStatus   `json:"database_status"`
	RedisStatus      api.HealthResponseRedisStatus      `json:"redis_status"`
	ActiveWorkers    int                                `json:"active_workers"`
}
