package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default configuration values into viper.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", SystemReporter)
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/roadwatch.log")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "roadwatch.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "roadwatch")
	viper.SetDefault("output.mysql.database", "roadwatch")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("detector.serviceurl", "http://localhost:5001")
	viper.SetDefault("detector.timeout", 30*time.Second)
	viper.SetDefault("detector.confidencefloor", DefaultConfidenceFloor)

	viper.SetDefault("geocoding.endpoint", "https://nominatim.openstreetmap.org/reverse")
	viper.SetDefault("geocoding.useragent", "roadwatch-go")
	viper.SetDefault("geocoding.timeout", DefaultGeocodingTimeout)

	viper.SetDefault("dedup.radiusmeters", DefaultDedupRadiusMeters)

	viper.SetDefault("mediastore.path", "media")
	viper.SetDefault("mediastore.publicbaseurl", "http://localhost:8080/media")

	viper.SetDefault("security.tokenttl", 7*24*time.Hour)
	viper.SetDefault("security.bcryptcost", 10)
	viper.SetDefault("security.strictjurisdiction", false)

	viper.SetDefault("video.ffmpegpath", "ffmpeg")
	viper.SetDefault("video.frameinterval", 1.0)
}
