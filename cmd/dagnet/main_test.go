package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dagnet/internal/nn"
	"github.com/born-ml/dagnet/internal/serialization"
)

const charRNN = `
inputs: [in]
outputs: [out]
seed: 3
backprop_type: truncated_bptt
tbptt_length: 5
vertices:
  - name: rnn
    type: simple_rnn
    inputs: [in]
    n_in: 3
    n_out: 4
    activation: tanh
  - name: out
    type: output
    inputs: [rnn]
    n_in: 4
    n_out: 3
    activation: softmax
    loss: mcxent
updater:
  type: adam
  learning_rate: 0.01
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_Commands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"no args", nil, "Commands:", false},
		{"version", []string{"version"}, "dagnet " + version, false},
		{"help", []string{"help"}, "train-text", false},
		{"unknown", []string{"serve"}, "Commands:", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tt.args, &out)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestRun_Summary(t *testing.T) {
	conf := writeFile(t, t.TempDir(), "graph.yaml", charRNN)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"summary", "-config", conf}, &out))
	s := out.String()
	assert.Contains(t, s, "rnn (1)")
	assert.Contains(t, s, "out (2)")
	// rnn: 3*4 + 4*4 + 4, out: 4*3 + 3
	assert.Contains(t, s, "Total parameters:     47")

	out.Reset()
	err := run(context.Background(), []string{"summary"}, &out)
	assert.Error(t, err)
}

func TestRun_TrainText(t *testing.T) {
	dir := t.TempDir()
	conf := writeFile(t, dir, "graph.yaml", charRNN)
	text := writeFile(t, dir, "train.txt", strings.Repeat("abc", 40))
	snapshot := filepath.Join(dir, "model.dagn")

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"train-text",
		"-config", conf,
		"-text", text,
		"-seq", "10",
		"-batch", "4",
		"-epochs", "2",
		"-log-every", "1",
		"-save", snapshot,
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "vocab=3")
	assert.Contains(t, out.String(), "training done")

	g, err := serialization.Load(snapshot, nn.NewFactory(), true)
	require.NoError(t, err)
	// 11 sequences of 10 in 119 tokens: 3 minibatches per epoch, 2 windows each.
	assert.Equal(t, 12, g.Iteration())
	assert.Equal(t, 2, g.Epoch())
	assert.NotEmpty(t, g.UpdaterState())

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"summary", "-snapshot", snapshot}, &out))
	assert.Contains(t, out.String(), "Total parameters:     47")
}

func TestRun_TrainText_Errors(t *testing.T) {
	dir := t.TempDir()
	conf := writeFile(t, dir, "graph.yaml", charRNN)
	wide := writeFile(t, dir, "wide.txt", strings.Repeat("abcd", 30))
	short := writeFile(t, dir, "short.txt", "abc")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing flags", []string{"train-text", "-config", conf}, "required"},
		{"vocab mismatch", []string{"train-text", "-config", conf, "-text", wide, "-seq", "5"}, "4 distinct tokens"},
		{"text too short", []string{"train-text", "-config", conf, "-text", short, "-seq", "5"}, "cannot fill"},
		{"missing config", []string{"train-text", "-config", filepath.Join(dir, "none.yaml"), "-text", wide}, "none.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tt.args, &out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
