package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode selects how the node talks to the chain: "live" signs and submits
	// real staking transactions, "sim" runs against the in-memory simulator.
	Mode string

	// EVMEndpoint is the JSON-RPC URL of the chain's EVM entry point.
	EVMEndpoint string
	// SignerKeyHex is the hex-encoded secp256k1 private key used to sign
	// staking transactions in live mode.
	SignerKeyHex string
	// NetUID is the subnet the protocol trades and provides liquidity on.
	NetUID uint64
	// ValidatorHotkey is the hex-encoded hotkey stakes are delegated to.
	ValidatorHotkey string

	// VestingBeneficiary receives the schedules minted by treasury buybacks.
	VestingBeneficiary string

	// WebPort is the listen port for the HTTP API.
	WebPort int

	// Database connection parameters.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode, err = getEnv("TENEX_MODE")
	if err != nil {
		return err
	}

	EVMEndpoint, err = getEnv("TENEX_EVM_ENDPOINT")
	if err != nil {
		return err
	}

	NetUID, err = getEnvAsUint64("TENEX_NETUID")
	if err != nil {
		return err
	}

	ValidatorHotkey, err = getEnv("TENEX_VALIDATOR_HOTKEY")
	if err != nil {
		return err
	}

	VestingBeneficiary, err = getEnv("TENEX_VESTING_BENEFICIARY")
	if err != nil {
		return err
	}

	WebPort, err = getEnvAsInt("TENEX_WEB_PORT")
	if err != nil {
		return err
	}

	// The signer key is only needed when real transactions will be sent.
	if Mode == "live" {
		SignerKeyHex, err = getEnv("TENEX_SIGNER_KEY")
		if err != nil {
			return err
		}
	} else {
		SignerKeyHex = os.Getenv("TENEX_SIGNER_KEY")
	}

	if err := loadDBConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("Mode", Mode).
		Str("EVMEndpoint", EVMEndpoint).
		Uint64("NetUID", NetUID).
		Int("WebPort", WebPort).
		Msg("Configuration loaded successfully.")

	return nil
}

func loadDBConfig() error {
	var err error

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}
	DBPort, err = getEnvAsInt("DB_PORT")
	if err != nil {
		return err
	}
	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}
	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}
	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}
	DBSSLMode, err = getEnv("DB_SSLMODE")
	if err != nil {
		return err
	}
	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}
