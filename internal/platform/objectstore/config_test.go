package objectstore

import "testing"

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SKY_UNIFIER_MINIO_ACCESS_KEY", "key")
	t.Setenv("SKY_UNIFIER_MINIO_SECRET_KEY", "secret")
	t.Setenv("SKY_UNIFIER_MINIO_PREFIX", "/layers/")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Bucket != "sky-unifier-layers" || cfg.Prefix != "layers" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{Endpoint: "minio:9000", AccessKey: "k", SecretKey: "s", Bucket: "b"}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	cases := map[string]func(*Config){
		"endpoint scheme": func(c *Config) { c.Endpoint = "http://minio:9000" },
		"no endpoint":     func(c *Config) { c.Endpoint = "" },
		"no secret":       func(c *Config) { c.SecretKey = "" },
		"no bucket":       func(c *Config) { c.Bucket = " " },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: Validate() err=nil, want error", name)
		}
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatalf("Open() err=nil, want error")
	}
}

func TestOpen(t *testing.T) {
	b, err := Open(Config{Endpoint: "minio:9000", AccessKey: "k", SecretKey: "s", Region: "us-east-1", Bucket: "layers", Prefix: "dev"})
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	if b.Client == nil || b.Name != "layers" || b.Prefix != "dev" {
		t.Fatalf("bucket=%+v", b)
	}
}
