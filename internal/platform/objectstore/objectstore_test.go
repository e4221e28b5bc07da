package objectstore

import "testing"

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:          "localhost:9000",
		AccessKey:         "a",
		SecretKey:         "b",
		Region:            "us-east-1",
		UseSSL:            false,
		BucketScreenshots: "canary-screenshots",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}

	invalid = valid
	invalid.BucketScreenshots = "  "
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for blank bucket")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CANARY_MINIO_ENDPOINT", "minio.internal:9000")
	t.Setenv("CANARY_MINIO_USE_SSL", "true")
	t.Setenv("CANARY_MINIO_BUCKET_SCREENSHOTS", "probe-shots")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Endpoint != "minio.internal:9000" {
		t.Fatalf("Endpoint=%q", cfg.Endpoint)
	}
	if !cfg.UseSSL {
		t.Fatalf("UseSSL=false, want true")
	}
	if cfg.BucketScreenshots != "probe-shots" {
		t.Fatalf("BucketScreenshots=%q", cfg.BucketScreenshots)
	}
}
