// Package config assembles the service configuration from defaults, an
// optional JSON file, environment variables and command-line flags, in
// increasing order of priority.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/thoas/go-funk"
)

const (
	StorageDynamoDB = "dynamodb"
	StoragePostgres = "postgres"
	StorageFile     = "file"
	StorageMemory   = "memory"
)

type Config struct {
	RunAddr             string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel            string        `env:"LOG_LEVEL" validate:"loglevel"`
	TableName           string        `env:"TABLE_NAME" validate:"required,tablename"`
	StorageType         string        `env:"STORAGE_TYPE" validate:"storagetype"`
	DatabaseDSN         string        `env:"DATABASE_DSN" validate:"required_if=StorageType postgres"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT"`
	DBPreReset          bool          `env:"DB_PRE_RESET"`
	DBFileName          string        `env:"FILE_STORAGE_PATH" validate:"required_if=StorageType file,dbfilepath"`
	AWSRegion           string        `env:"AWS_REGION"`
	DynamoDBEndpoint    string        `env:"DYNAMODB_ENDPOINT" validate:"omitempty,url"`
	AWSAccessKeyID      string        `env:"DYNAMODB_ACCESS_KEY_ID"`
	AWSSecretAccessKey  string        `env:"DYNAMODB_SECRET_ACCESS_KEY"`
	CreateTable         bool          `env:"CREATE_TABLE"`
	AllowedOrigins      []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	AMQPURL             string        `env:"AMQP_URL" validate:"omitempty,url"`
	AMQPExchange        string        `env:"AMQP_EXCHANGE"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT"`
	ConfigFile          string        `env:"CONFIG"`
}

var defaultConfig = Config{
	RunAddr:             ":8080",
	LogLevel:            "info",
	StorageType:         StorageDynamoDB,
	DBConnectionTimeout: 10 * time.Second,
	AWSRegion:           "us-east-1",
	AllowedOrigins: []string{
		"https://distinction-dev-task.vercel.app",
		"http://localhost:3000",
	},
	AMQPExchange:    "users",
	ShutdownTimeout: 10 * time.Second,
}

type jsonConfig struct {
	RunAddr             string   `json:"server_address"`
	LogLevel            string   `json:"log_level"`
	TableName           string   `json:"table_name"`
	StorageType         string   `json:"storage_type"`
	DatabaseDSN         string   `json:"database_dsn"`
	DBConnectionTimeout string   `json:"db_connection_timeout"`
	DBPreReset          bool     `json:"db_pre_reset"`
	DBFileName          string   `json:"file_storage_path"`
	AWSRegion           string   `json:"aws_region"`
	DynamoDBEndpoint    string   `json:"dynamodb_endpoint"`
	CreateTable         bool     `json:"create_table"`
	AllowedOrigins      []string `json:"allowed_origins"`
	AMQPURL             string   `json:"amqp_url"`
	AMQPExchange        string   `json:"amqp_exchange"`
	ShutdownTimeout     string   `json:"shutdown_timeout"`
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing skips os.Args, e.g. inside Lambda or tests.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warning": true,
		"warn":    true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

// Table names shared by DynamoDB and PostgreSQL: DynamoDB naming rules, and
// the lowercase identifier form when the table lives in PostgreSQL.
var (
	dynamoDBTableName = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,255}$`)
	postgresTableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,56}$`)
)

func validateTableName(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()
	if fieldLevel.Parent().FieldByName("StorageType").String() == StoragePostgres {
		return postgresTableName.MatchString(value)
	}

	return dynamoDBTableName.MatchString(value)
}

func validateStorageType(fieldLevel validator.FieldLevel) bool {
	return funk.ContainsString(
		[]string{StorageDynamoDB, StoragePostgres, StorageFile, StorageMemory},
		fieldLevel.Field().String(),
	)
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("dbfilepath", validateFilePath)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("storagetype", validateStorageType)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("tablename", validateTableName)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

func normalizeOrigins(origins []string) []string {
	trimmed := funk.Map(origins, strings.TrimSpace).([]string)

	return funk.FilterString(trimmed, func(origin string) bool {
		return origin != ""
	})
}

func (c *Config) applyJSON(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}

	var fromJSON jsonConfig
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		return err
	}

	if fromJSON.RunAddr != "" {
		c.RunAddr = fromJSON.RunAddr
	}
	if fromJSON.LogLevel != "" {
		c.LogLevel = fromJSON.LogLevel
	}
	if fromJSON.TableName != "" {
		c.TableName = fromJSON.TableName
	}
	if fromJSON.StorageType != "" {
		c.StorageType = fromJSON.StorageType
	}
	if fromJSON.DatabaseDSN != "" {
		c.DatabaseDSN = fromJSON.DatabaseDSN
	}
	if fromJSON.DBConnectionTimeout != "" {
		c.DBConnectionTimeout, err = time.ParseDuration(fromJSON.DBConnectionTimeout)
		if err != nil {
			return fmt.Errorf("db_connection_timeout: %w", err)
		}
	}
	if fromJSON.DBPreReset {
		c.DBPreReset = true
	}
	if fromJSON.DBFileName != "" {
		c.DBFileName = fromJSON.DBFileName
	}
	if fromJSON.AWSRegion != "" {
		c.AWSRegion = fromJSON.AWSRegion
	}
	if fromJSON.DynamoDBEndpoint != "" {
		c.DynamoDBEndpoint = fromJSON.DynamoDBEndpoint
	}
	if fromJSON.CreateTable {
		c.CreateTable = true
	}
	if len(fromJSON.AllowedOrigins) > 0 {
		c.AllowedOrigins = fromJSON.AllowedOrigins
	}
	if fromJSON.AMQPURL != "" {
		c.AMQPURL = fromJSON.AMQPURL
	}
	if fromJSON.AMQPExchange != "" {
		c.AMQPExchange = fromJSON.AMQPExchange
	}
	if fromJSON.ShutdownTimeout != "" {
		c.ShutdownTimeout, err = time.ParseDuration(fromJSON.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("shutdown_timeout: %w", err)
		}
	}

	return nil
}

func (c *Config) applyEnv(fromEnv Config) {
	if fromEnv.RunAddr != "" {
		c.RunAddr = fromEnv.RunAddr
	}
	if fromEnv.LogLevel != "" {
		c.LogLevel = fromEnv.LogLevel
	}
	if fromEnv.TableName != "" {
		c.TableName = fromEnv.TableName
	}
	if fromEnv.StorageType != "" {
		c.StorageType = fromEnv.StorageType
	}
	if fromEnv.DatabaseDSN != "" {
		c.DatabaseDSN = fromEnv.DatabaseDSN
	}
	if fromEnv.DBConnectionTimeout != 0 {
		c.DBConnectionTimeout = fromEnv.DBConnectionTimeout
	}
	if fromEnv.DBPreReset {
		c.DBPreReset = true
	}
	if fromEnv.DBFileName != "" {
		c.DBFileName = fromEnv.DBFileName
	}
	if fromEnv.AWSRegion != "" {
		c.AWSRegion = fromEnv.AWSRegion
	}
	if fromEnv.DynamoDBEndpoint != "" {
		c.DynamoDBEndpoint = fromEnv.DynamoDBEndpoint
	}
	if fromEnv.AWSAccessKeyID != "" {
		c.AWSAccessKeyID = fromEnv.AWSAccessKeyID
	}
	if fromEnv.AWSSecretAccessKey != "" {
		c.AWSSecretAccessKey = fromEnv.AWSSecretAccessKey
	}
	if fromEnv.CreateTable {
		c.CreateTable = true
	}
	if len(fromEnv.AllowedOrigins) > 0 {
		c.AllowedOrigins = fromEnv.AllowedOrigins
	}
	if fromEnv.AMQPURL != "" {
		c.AMQPURL = fromEnv.AMQPURL
	}
	if fromEnv.AMQPExchange != "" {
		c.AMQPExchange = fromEnv.AMQPExchange
	}
	if fromEnv.ShutdownTimeout != 0 {
		c.ShutdownTimeout = fromEnv.ShutdownTimeout
	}
}

// parseFlags returns the values of the flags present on the command line only.
func parseFlags(args []string) (Config, map[string]bool, error) {
	var fromFlags Config

	flagSet := flag.NewFlagSet("usersvc", flag.ContinueOnError)
	flagSet.StringVar(&fromFlags.RunAddr, "a", "", "address and port to run server")
	flagSet.StringVar(&fromFlags.LogLevel, "l", "", "logger level")
	flagSet.StringVar(&fromFlags.TableName, "t", "", "users table name")
	flagSet.StringVar(&fromFlags.StorageType, "s", "", "storage type: dynamodb, postgres, file or memory")
	flagSet.StringVar(&fromFlags.DatabaseDSN, "d", "", "A string with the database connection details")
	flagSet.StringVar(&fromFlags.DBFileName, "f", "", "JSON file name with database")
	flagSet.StringVar(&fromFlags.ConfigFile, "c", "", "JSON configuration file")
	flagSet.BoolVar(&fromFlags.DBPreReset, "r", false, "drop the PostgreSQL users table before start")
	if err := flagSet.Parse(args); err != nil {
		return fromFlags, nil, err
	}

	isSet := map[string]bool{}
	flagSet.Visit(func(f *flag.Flag) {
		isSet[f.Name] = true
	})

	return fromFlags, isSet, nil
}

func (c *Config) applyFlags(fromFlags Config, isSet map[string]bool) {
	if isSet["a"] {
		c.RunAddr = fromFlags.RunAddr
	}
	if isSet["l"] {
		c.LogLevel = fromFlags.LogLevel
	}
	if isSet["t"] {
		c.TableName = fromFlags.TableName
	}
	if isSet["s"] {
		c.StorageType = fromFlags.StorageType
	}
	if isSet["d"] {
		c.DatabaseDSN = fromFlags.DatabaseDSN
	}
	if isSet["f"] {
		c.DBFileName = fromFlags.DBFileName
	}
	if isSet["r"] {
		c.DBPreReset = fromFlags.DBPreReset
	}
}

func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	var fromFlags Config
	isSet := map[string]bool{}
	if !options.disableFlagsParsing {
		fromFlags, isSet, err = parseFlags(os.Args[1:])
		if err != nil {
			return nil, err
		}
	}

	var fromEnv Config
	err = env.Parse(&fromEnv)
	if err != nil {
		return nil, err
	}

	result := defaultConfig
	result.AllowedOrigins = append([]string(nil), defaultConfig.AllowedOrigins...)

	result.ConfigFile = fromEnv.ConfigFile
	if isSet["c"] {
		result.ConfigFile = fromFlags.ConfigFile
	}
	if result.ConfigFile != "" {
		if err := result.applyJSON(result.ConfigFile); err != nil {
			return nil, fmt.Errorf(
				"in internal/config/config.go/New(): error while `result.applyJSON()` calling: %w",
				err,
			)
		}
	}

	result.applyEnv(fromEnv)
	result.applyFlags(fromFlags, isSet)
	result.AllowedOrigins = normalizeOrigins(result.AllowedOrigins)

	if err := result.validate(); err != nil {
		return nil, err
	}

	return &result, nil
}
