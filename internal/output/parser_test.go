package output

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestParseLegacyLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "account",
			line: "📁 Using account file: /tmp/job/credentials.json",
			want: Event{Kind: KindAccount, Label: "/tmp/job/credentials.json"},
		},
		{
			name: "progress",
			line: "Progress: 45%",
			want: Event{Kind: KindProgress, Percent: 45},
		},
		{
			name: "fractional progress",
			line: "Indexing URLs: 99.5% done",
			want: Event{Kind: KindProgress, Percent: 99},
		},
		{
			name: "url success",
			line: "✅ SUCCESS: https://example.com indexed successfully",
			want: Event{Kind: KindURLResult, OK: true},
		},
		{
			name: "url failure",
			line: "❌ FAILED: https://example.com could not be indexed",
			want: Event{Kind: KindURLResult, Note: "❌ FAILED: https://example.com could not be indexed"},
		},
		{
			name: "summary",
			line: "✅ Completed: 3 successful, ⚠ 1 rate limited, ❌ 2 failed",
			want: Event{Kind: KindCompleted, Counts: Counts{
				Successful:  intPtr(3),
				RateLimited: intPtr(1),
				Failed:      intPtr(2),
			}},
		},
		{
			name: "completion without counts",
			line: "🎉 Indexing process completed!",
			want: Event{Kind: KindCompleted},
		},
		{
			name: "indexing failed",
			line: "❌ Indexing failed: quota exceeded",
			want: Event{Kind: KindFailed, Note: "❌ Indexing failed: quota exceeded"},
		},
		{
			name: "completed with errors is a failure",
			line: "💢 Script completed with errors",
			want: Event{Kind: KindFailed, Note: "💢 Script completed with errors"},
		},
		{
			name: "failure summary keeps counts",
			line: "Completed with errors: 3 successful, 2 failed",
			want: Event{Kind: KindFailed, Note: "Completed with errors: 3 successful, 2 failed", Counts: Counts{
				Successful: intPtr(3),
				Failed:     intPtr(2),
			}},
		},
		{
			name: "single url completion",
			line: "🎉 Single URL indexing completed successfully!",
			want: Event{Kind: KindCompleted},
		},
		{
			name: "completed inside progress line",
			line: "Progress: 40% completed",
			want: Event{Kind: KindProgress, Percent: 40},
		},
		{
			name: "batch completed with percent",
			line: "Batch 1/5 completed (20%)",
			want: Event{Kind: KindProgress, Percent: 20},
		},
		{
			name: "batch completed without percent",
			line: "Batch 2/5 completed",
			want: Event{},
		},
		{
			name: "success rate is not progress",
			line: "Success Rate: 93.33%",
			want: Event{},
		},
		{
			name: "error prefix",
			line: "Error: CSV file not found",
			want: Event{Kind: KindFailed, Note: "Error: CSV file not found"},
		},
		{
			name: "unrelated",
			line: "📊 Loaded 5 URLs from CSV",
			want: Event{},
		},
		{
			name: "blank",
			line: "   ",
			want: Event{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Parse(tc.line))
		})
	}
}

func TestParseStructuredLines(t *testing.T) {
	t.Parallel()

	require.Equal(t, Event{Kind: KindAccount, Label: "svc-1"}, Parse(`{"event":"account","label":"svc-1"}`))
	require.Equal(t, Event{Kind: KindProgress, Percent: 100}, Parse(`{"event":"progress","percent":140}`))
	require.Equal(t, Event{Kind: KindURLResult, OK: true}, Parse(`{"event":"url","ok":true}`))
	require.Equal(t, Event{Kind: KindFailed, Note: "quota"}, Parse(`{"event":"failed","note":"quota"}`))

	evt := Parse(`{"event":"completed","counts":{"successful":4}}`)
	require.Equal(t, KindCompleted, evt.Kind)
	require.Equal(t, intPtr(4), evt.Counts.Successful)
	require.Nil(t, evt.Counts.RateLimited)
	require.Nil(t, evt.Counts.Failed)
}

func TestParseMalformedInputIsIgnored(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		`{"event":`,
		`{"event":"mystery"}`,
		`{"event":"progress"}`,
		`{"event":"account"}`,
		"Progress: 250%",
	} {
		require.Equal(t, Event{}, Parse(line), line)
	}
}

func TestCountsApplyKeepsAbsentFields(t *testing.T) {
	t.Parallel()

	prior := Tally{Successful: 2, RateLimited: 1, Failed: 1}
	got := Counts{Successful: intPtr(5)}.Apply(prior)
	require.Equal(t, Tally{Successful: 5, RateLimited: 1, Failed: 1}, got)

	require.Equal(t, prior, Counts{}.Apply(prior))
}

func FuzzParse(f *testing.F) {
	for _, seed := range []string{
		"✅ Completed: 3 successful",
		`{"event":"completed","counts":{"failed":-1}}`,
		"100%",
		"",
	} {
		f.Add(seed)
	}
	f.Fuzz(func(_ *testing.T, line string) {
		_ = Parse(line)
	})
}
