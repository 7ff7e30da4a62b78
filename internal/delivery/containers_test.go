package delivery

import (
	"bytes"
	"context"
	"fisconforme-backend/internal/components/telemetry"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/go-resty/resty/v2"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	testcontainers.SkipIfProviderIsNotHealthy(t)
	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	container, err := testcontainers.GenericContainer(context.Background(), testcontainers.GenericContainerRequest{
		Started:          true,
		ContainerRequest: req,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := container.Terminate(context.Background())
		if err != nil {
			t.Fatal(err)
		}
	})
	return container
}

func endpoint(t *testing.T, container testcontainers.Container, port nat.Port) (string, int) {
	ctx := context.Background()
	host, err := container.Host(ctx)
	require.Nil(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.Nil(t, err)
	n, err := strconv.Atoi(mapped.Port())
	require.Nil(t, err)
	return host, n
}

func TestMailerDelivers(t *testing.T) {
	smtp := startContainer(t, testcontainers.ContainerRequest{
		Image:        "haravich/fake-smtp-server",
		ExposedPorts: []string{"1025/tcp", "1080/tcp"},
		WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
	})
	host, smtpPort := endpoint(t, smtp, "1025/tcp")
	_, webPort := endpoint(t, smtp, "1080/tcp")

	mailer := NewMailer(SmtpConfig{
		Server:       host,
		Port:         smtpPort,
		EmailAddress: "robot@email.com",
		Password:     "default",
	}, &telemetry.Recorder{})
	err := mailer.Deliver(context.Background(), Delivery{
		Tenant:   "ana@email.com",
		FileName: "dares_ana_email_com_2026-10-14.zip",
		Archive:  []byte("PK fake zip"),
		Summary:  "Empresas: 1, falhas: 0, documentos: 1.",
	})
	require.Nil(t, err)

	res, err := resty.New().R().Get(fmt.Sprintf("http://%s:%d/messages/1.plain", host, webPort))
	require.Nil(t, err)
	require.True(t, strings.Contains(res.String(), "dares_ana_email_com_2026-10-14.zip"))
}

func TestObjectStoreDelivers(t *testing.T) {
	store := startContainer(t, testcontainers.ContainerRequest{
		Image:        "minio/minio",
		Cmd:          []string{"server", "/data"},
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "fisconforme",
			"MINIO_ROOT_PASSWORD": "fisconforme-secret",
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	})
	host, port := endpoint(t, store, "9000/tcp")

	ctx := context.Background()
	sink, err := NewObjectStore(ctx, ObjectStoreConfig{
		Endpoint:  fmt.Sprintf("%s:%d", host, port),
		AccessKey: "fisconforme",
		SecretKey: "fisconforme-secret",
		Bucket:    "dares",
		Prefix:    "daily",
	}, &telemetry.Recorder{})
	require.Nil(t, err)

	archive := []byte("PK fake zip")
	err = sink.Deliver(ctx, Delivery{Tenant: "ana@email.com", FileName: "dares.zip", Archive: archive})
	require.Nil(t, err)

	object, err := sink.client.GetObject(ctx, "dares", "daily/ana@email.com/dares.zip", minio.GetObjectOptions{})
	require.Nil(t, err)
	defer object.Close()
	contents, err := io.ReadAll(object)
	require.Nil(t, err)
	require.True(t, bytes.Equal(archive, contents))
}
