package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/chicha/internal/app/dispatch"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		text string
		want dispatch.Intent
	}{
		{
			name: "navigation",
			text: "From: Pune To: Mumbai",
			want: dispatch.Navigation{From: "Pune", To: "Mumbai"},
		},
		{
			name: "navigation is case and whitespace tolerant",
			text: "   from:Times Square    TO:   Central Park  ",
			want: dispatch.Navigation{From: "Times Square", To: "Central Park"},
		},
		{
			name: "navigation with a place starting with To",
			text: "From: Toronto To: Ottawa",
			want: dispatch.Navigation{From: "Toronto", To: "Ottawa"},
		},
		{
			name: "navigation wins over weather keywords",
			text: "From: Weather Station To: Forecast Hill",
			want: dispatch.Navigation{From: "Weather Station", To: "Forecast Hill"},
		},
		{
			name: "navigation destination ends at the line break",
			text: "From: A To: B\nthanks a lot",
			want: dispatch.Navigation{From: "A", To: "B"},
		},
		{
			name: "navigation split over two lines",
			text: "From: Pune\nTo: Mumbai",
			want: dispatch.Navigation{From: "Pune", To: "Mumbai"},
		},
		{
			name: "weather with location",
			text: "What's the weather in London?",
			want: dispatch.WeatherQuery{Location: "London"},
		},
		{
			name: "temperature for a multi word place",
			text: "temperature for New Delhi, please",
			want: dispatch.WeatherQuery{Location: "New Delhi"},
		},
		{
			name: "forecast at",
			text: "FORECAST AT Reykjavik",
			want: dispatch.WeatherQuery{Location: "Reykjavik"},
		},
		{
			name: "weather without location",
			text: "weather?",
			want: dispatch.WeatherQuery{},
		},
		{
			name: "plain chat",
			text: "  tell me a joke  ",
			want: dispatch.PlainChat{Text: "tell me a joke"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, dispatch.Classify(tc.text, nil))
		})
	}
}

func TestClassifyKeepsAttachmentsOnPlainChat(t *testing.T) {
	atts := []dispatch.Attachment{{ID: "a"}, {ID: "b"}}

	got := dispatch.Classify("what is this?", atts)

	chat, ok := got.(dispatch.PlainChat)
	require.True(t, ok)
	require.Equal(t, atts, chat.Attachments)
}

func TestDirectionsURLPercentEncodes(t *testing.T) {
	got := dispatch.DirectionsURL("Café de Flore, Paris", "Gare du Nord & more")
	require.Equal(t,
		"https://www.google.com/maps/dir/?api=1"+
			"&origin=Caf%C3%A9%20de%20Flore%2C%20Paris"+
			"&destination=Gare%20du%20Nord%20%26%20more",
		got)
}
