package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App     AppConfig
	DB      DBConfig
	HTTP    HTTPConfig
	SUNAT   SUNATConfig
	Billing BillingConfig
	Storage StorageConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// SUNATConfig configuración de comprobantes electrónicos SUNAT (Perú).
// Las URLs de ambos ambientes se pueden sobreescribir para apuntar a un mock.
type SUNATConfig struct {
	BetaURL       string        // Endpoint billService de habilitación (BETA)
	ProductionURL string        // Endpoint billService de producción
	CallTimeout   time.Duration // Timeout duro por llamada SOAP (envío y consulta)
}

// BillingConfig parámetros operativos del pipeline de facturación.
// Son valores de afinamiento, nunca constantes en el código.
type BillingConfig struct {
	MaxRetries        int           // Reintentos de envío antes de ERROR_FINAL
	RetrySpacing      time.Duration // Espera mínima entre reintentos del sweep
	PollMaxAttempts   int           // Intentos máximos de consulta de ticket
	PollBaseDelay     time.Duration // Espera base entre consultas de ticket
	JobWorkers        int           // Workers del runner de tareas en proceso
	JobQueueSize      int           // Capacidad de la cola de tareas
	JobMaxAttempts    int           // Reintentos por tarea encolada
	JobBaseDelay      time.Duration // Backoff base de la tarea (exponencial)
	SweepInterval     time.Duration // Intervalo del demonio de barrido
	SweepBatchSize    int           // Documentos máximos por ciclo de barrido
	ErrorMaxLength    int           // Truncado de descripciones de error persistidas
}

// StorageConfig raíz del almacén de artefactos (XML, firmas, CDR).
type StorageConfig struct {
	BasePath string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, SUNAT_CALL_TIMEOUT, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "inova"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "inova"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		SUNAT: SUNATConfig{
			BetaURL:       getString(v, "SUNAT_BETA_URL", "https://e-beta.sunat.gob.pe/ol-ti-itcpfegem-beta/billService"),
			ProductionURL: getString(v, "SUNAT_PRODUCTION_URL", "https://e-factura.sunat.gob.pe/ol-ti-itcpfegem/billService"),
			CallTimeout:   getDuration(v, "SUNAT_CALL_TIMEOUT", 60*time.Second),
		},
		Billing: BillingConfig{
			MaxRetries:      getInt(v, "BILLING_MAX_RETRIES", 5),
			RetrySpacing:    getDuration(v, "BILLING_RETRY_SPACING", 30*time.Minute),
			PollMaxAttempts: getInt(v, "BILLING_POLL_MAX_ATTEMPTS", 5),
			PollBaseDelay:   getDuration(v, "BILLING_POLL_BASE_DELAY", 5*time.Second),
			JobWorkers:      getInt(v, "BILLING_JOB_WORKERS", 4),
			JobQueueSize:    getInt(v, "BILLING_JOB_QUEUE_SIZE", 256),
			JobMaxAttempts:  getInt(v, "BILLING_JOB_MAX_ATTEMPTS", 3),
			JobBaseDelay:    getDuration(v, "BILLING_JOB_BASE_DELAY", time.Minute),
			SweepInterval:   getDuration(v, "BILLING_SWEEP_INTERVAL", time.Hour),
			SweepBatchSize:  getInt(v, "BILLING_SWEEP_BATCH_SIZE", 10),
			ErrorMaxLength:  getInt(v, "BILLING_ERROR_MAX_LENGTH", 500),
		},
		Storage: StorageConfig{
			BasePath: getString(v, "STORAGE_BASE_PATH", "./media/electronic_billing"),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if v.IsSet(key) {
		if d := v.GetDuration(key); d > 0 {
			return d
		}
	}
	return def
}
