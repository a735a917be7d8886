// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("worker.command", "python3")
	viper.SetDefault("worker.script", "python/worker.py")
	viper.SetDefault("worker.args", []string{})
	viper.SetDefault("worker.topk", 5)
	viper.SetDefault("worker.timeoutseconds", 120)

	viper.SetDefault("triage.threshold", 0.6)
	viper.SetDefault("triage.uploadpath", "uploads/")
	viper.SetDefault("triage.speciesimagepath", "species_images/")

	viper.SetDefault("security.datakey", "")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "smartplant.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "smartplant")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "sarawak_plant_db")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("log.path", "logs/smartplant.log")

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "0.0.0.0:8090")
}
