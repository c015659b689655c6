package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoReq struct {
	Text  string `json:"text" description:"Text to echo"`
	Times int    `json:"times,omitempty"`
}

type echoResp struct {
	Out []string `json:"out"`
}

func echo(ctx context.Context, req echoReq) (echoResp, error) {
	if req.Times < 0 {
		return echoResp{}, errors.New("negative times")
	}
	var out []string
	for i := 0; i < req.Times; i++ {
		out = append(out, req.Text)
	}
	return echoResp{Out: out}, nil
}

func TestFunctionExecute(t *testing.T) {
	f := NewFunction("echo", "repeat text", echo)
	assert.Equal(t, "echo", f.Name())
	assert.Equal(t, "repeat text", f.Description())

	out, err := f.Execute(context.Background(), `{"text":"hi","times":2}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"out":["hi","hi"]}`, out)

	_, err = f.Execute(context.Background(), `{"times":-1}`)
	assert.EqualError(t, err, "negative times")

	_, err = f.Execute(context.Background(), `not json`)
	assert.ErrorContains(t, err, "decode arguments")
}

func TestFunctionSchemas(t *testing.T) {
	f := NewFunction("echo", "repeat text", echo)

	schema := f.Schema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"text"}, schema["required"])
	props := schema["properties"].(map[string]interface{})
	assert.Equal(t, "Text to echo", props["text"].(map[string]interface{})["description"])

	resp := f.ResponseSchema()
	out := resp["properties"].(map[string]interface{})["out"].(map[string]interface{})
	assert.Equal(t, "array", out["type"])
}

func TestWeatherToolAlwaysReportsThirtyCelsius(t *testing.T) {
	w := NewWeatherTool()
	assert.Equal(t, "CurrentWeatherService", w.Name())

	for _, city := range []string{"San Francisco", "Tokyo", "Paris"} {
		args, _ := json.Marshal(WeatherRequest{Location: city, Unit: UnitFahrenheit})
		out, err := w.Execute(context.Background(), string(args))
		require.NoError(t, err)

		var resp WeatherResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, 30.0, resp.Temp)
		assert.Equal(t, UnitCelsius, resp.Unit)
	}
}
