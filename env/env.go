// Package env retrieves configuration parameters from environment variables.
//
// Values may point to AWS Secrets Manager or Parameter Store entries,
// which are resolved by boilerplate secret under the role SECRET_ROLE_ARN.
package env

import (
	"log"
	"os"
	"strconv"

	"github.com/udhos/boilerplate/envconfig"
	"github.com/udhos/boilerplate/secret"
)

// New creates an env context for retrieving parameters.
// sessionName names the STS session used when SECRET_ROLE_ARN is set.
func New(sessionName string) *envconfig.Env {
	roleArn := os.Getenv("SECRET_ROLE_ARN")

	log.Printf("SECRET_ROLE_ARN='%s'", roleArn)

	return envconfig.New(envconfig.Options{
		Secret: secret.New(secret.Options{
			RoleSessionName: sessionName,
			RoleArn:         roleArn,
		}),
	})
}

// String reads a plain env var without secret resolution.
// Empty var returns defaultValue.
func String(name, defaultValue string) string {
	if str := os.Getenv(name); str != "" {
		return str
	}
	return defaultValue
}

// Bool reads a plain boolean env var without secret resolution.
// Empty or unparsable var returns defaultValue.
func Bool(name string, defaultValue bool) bool {
	str := os.Getenv(name)
	if str == "" {
		return defaultValue
	}
	value, errConv := strconv.ParseBool(str)
	if errConv != nil {
		log.Printf("bad %s=[%s]: error: %v", name, str, errConv)
		return defaultValue
	}
	return value
}
