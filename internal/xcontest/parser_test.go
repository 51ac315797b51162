package xcontest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<html><body>
<table class="flights">
<thead><tr><th>No.</th><th>pilot</th><th></th></tr></thead>
<tbody>
<tr id="flight-2486132">
	<td class="plt">Jan Lopper</td>
	<td class="nv"><a class="detail" href="/world/cs/prelety/detail:Lopper/17.5.2020/14:02">detail</a></td>
</tr>
<tr id="flight-2486140">
	<td class="plt">Eva Novakova</td>
	<td class="nv"><a class="detail" href="https://www.xcontest.org/world/cs/prelety/detail:enovak/17.5.2020/15:30">detail</a></td>
</tr>
</tbody>
</table>
</body></html>`

func TestParseFlights(t *testing.T) {
	parser, err := NewParser("https://www.xcontest.org")
	require.NoError(t, err)

	flights, err := parser.ParseFlights([]byte(listingPage))
	require.NoError(t, err)
	require.Len(t, flights, 2)

	prague, err := time.LoadLocation("Europe/Prague")
	require.NoError(t, err)

	first := flights[0]
	assert.Equal(t, "2486132", first.ID)
	assert.Equal(t, "https://www.xcontest.org/world/cs/prelety/detail:Lopper/17.5.2020/14:02", first.Link)
	assert.Equal(t, "Lopper", first.Pilot.Username)
	assert.Equal(t, "Jan Lopper", first.Pilot.Name)
	assert.True(t, first.Start.Equal(time.Date(2020, 5, 17, 14, 2, 0, 0, prague)))

	second := flights[1]
	assert.Equal(t, "2486140", second.ID)
	assert.Equal(t, "enovak", second.Pilot.Username)
	assert.True(t, second.Start.Equal(time.Date(2020, 5, 17, 15, 30, 0, 0, prague)))
}

func TestParseFlightsEmptyResult(t *testing.T) {
	parser, err := NewParser("https://www.xcontest.org")
	require.NoError(t, err)

	flights, err := parser.ParseFlights([]byte(`<html><body><p>No flights found.</p></body></html>`))
	require.NoError(t, err)
	assert.Empty(t, flights)
}

func TestParseFlightsMalformedRow(t *testing.T) {
	parser, err := NewParser("https://www.xcontest.org")
	require.NoError(t, err)

	tests := []struct {
		name string
		row  string
	}{
		{
			name: "missing row id",
			row:  `<tr><td class="plt">X</td><td><a class="detail" href="/world/cs/prelety/detail:x/1.1.2020/10:00">d</a></td></tr>`,
		},
		{
			name: "missing detail link",
			row:  `<tr id="flight-1"><td class="plt">X</td></tr>`,
		},
		{
			name: "no pilot segment in link",
			row:  `<tr id="flight-1"><td class="plt">X</td><td><a class="detail" href="/world/cs/prelety/x/1.1.2020/10:00">d</a></td></tr>`,
		},
		{
			name: "unparseable start time",
			row:  `<tr id="flight-1"><td class="plt">X</td><td><a class="detail" href="/world/cs/prelety/detail:x/yesterday/noon">d</a></td></tr>`,
		},
		{
			name: "missing pilot name cell",
			row:  `<tr id="flight-1"><td><a class="detail" href="/world/cs/prelety/detail:x/1.1.2020/10:00">d</a></td></tr>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := `<html><body><table class="flights"><tbody>` + tt.row + `</tbody></table></body></html>`
			_, err := parser.ParseFlights([]byte(page))
			require.Error(t, err)

			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestHasNextPage(t *testing.T) {
	parser, err := NewParser("https://www.xcontest.org")
	require.NoError(t, err)

	tests := []struct {
		name string
		page string
		want bool
	}{
		{
			name: "no pager means single page",
			page: `<html><body><table class="flights"></table></body></html>`,
			want: false,
		},
		{
			name: "current marker last means last page",
			page: `<html><body><div class="paging"><a class="pg-edge" href="#">&lt;</a><a href="#">1</a><a href="#">2</a><strong>3</strong><a class="pg-edge" href="#">&gt;</a></div></body></html>`,
			want: false,
		},
		{
			name: "link after current marker means more pages",
			page: `<html><body><div class="paging"><a class="pg-edge" href="#">&lt;</a><a href="#">1</a><strong>2</strong><a href="#">3</a><a class="pg-edge" href="#">&gt;</a></div></body></html>`,
			want: true,
		},
		{
			name: "edge arrows do not count",
			page: `<html><body><div class="paging"><a class="pg-edge" href="#">&lt;</a><strong>1</strong><a class="pg-edge" href="#">&gt;</a></div></body></html>`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parser.HasNextPage([]byte(tt.page)))
		})
	}
}
