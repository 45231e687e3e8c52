package router

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func TestODMatrixMatchesPointToPoint(t *testing.T) {
	g := buildGraph(t,
		testTrip("t1", []string{"A", "C"}, []int{28800, 29400}),
		testTrip("t2", []string{"C", "D"}, []int{29500, 30100}),
	)
	rt := New(g, 500, nil)

	origins := []orb.Point{{144.9601, -37.8100}}   // beside A
	destinations := []orb.Point{
		{145.0601, -37.8100}, // beside C
		{145.1601, -37.9100}, // beside D
	}

	matrix, err := rt.ODMatrix(context.Background(), origins, destinations, 28800, 2)
	require.NoError(t, err)
	require.Len(t, matrix.Times, 1)
	require.Len(t, matrix.Times[0], 2)

	for j, dest := range destinations {
		travel, err := rt.ShortestPathBetween(28800, origins[0], dest)
		require.NoError(t, err)
		require.Equal(t, travel, matrix.Times[0][j], j)
	}
}

func TestODMatrixUnreachableCell(t *testing.T) {
	g := buildGraph(t, testTrip("t1", []string{"A", "C"}, []int{28800, 29400}))
	rt := New(g, 500, nil)

	matrix, err := rt.ODMatrix(context.Background(),
		[]orb.Point{{144.9601, -37.8100}},  // beside A
		[]orb.Point{{145.1601, -37.9100}},  // beside D, which no trip serves
		28800, 1)
	require.NoError(t, err)
	require.Equal(t, Unreachable, matrix.Times[0][0])
}

func TestODMatrixSnapFailuresYieldSentinelRows(t *testing.T) {
	g := buildGraph(t, testTrip("t1", []string{"A", "C"}, []int{28800, 29400}))
	rt := New(g, 500, nil)

	origins := []orb.Point{
		{144.9601, -37.8100}, // beside A
		{146.5000, -37.8100}, // nowhere near the graph
	}
	destinations := []orb.Point{
		{145.0601, -37.8100}, // beside C
		{146.6000, -37.8100}, // nowhere near the graph
	}

	matrix, err := rt.ODMatrix(context.Background(), origins, destinations, 28800, 2)
	require.NoError(t, err)

	require.Equal(t, 600, matrix.Times[0][0])
	require.Equal(t, Unreachable, matrix.Times[0][1])
	require.Equal(t, []int{Unreachable, Unreachable}, matrix.Times[1])
}

func TestODMatrixDeduplicatesOrigins(t *testing.T) {
	g := buildGraph(t, testTrip("t1", []string{"A", "C"}, []int{28800, 29400}))

	var got []QueryStats
	rt := New(g, 500, observerFunc(func(stats QueryStats) { got = append(got, stats) }))

	// Both origins snap to stop A, so one query serves both rows.
	origins := []orb.Point{
		{144.96005, -37.8100},
		{144.96010, -37.8100},
	}
	destinations := []orb.Point{{145.0601, -37.8100}}

	matrix, err := rt.ODMatrix(context.Background(), origins, destinations, 28800, 2)
	require.NoError(t, err)

	require.Equal(t, matrix.Times[0], matrix.Times[1])
	require.Len(t, got, 1)
	require.Equal(t, QueryMatrixRow, got[0].Kind)
}

func TestODMatrixRejectsNegativeDeparture(t *testing.T) {
	g := buildGraph(t, testTrip("t1", []string{"A", "C"}, []int{28800, 29400}))
	rt := New(g, 500, nil)

	matrix, err := rt.ODMatrix(context.Background(),
		[]orb.Point{{144.9601, -37.8100}},
		[]orb.Point{{145.0601, -37.8100}},
		-1, 1)
	require.Error(t, err)
	require.Nil(t, matrix)
}

func TestODMatrixCancelledContext(t *testing.T) {
	g := buildGraph(t, testTrip("t1", []string{"A", "C"}, []int{28800, 29400}))
	rt := New(g, 500, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rt.ODMatrix(ctx,
		[]orb.Point{{144.9601, -37.8100}},
		[]orb.Point{{145.0601, -37.8100}},
		28800, 1)
	require.ErrorIs(t, err, context.Canceled)
}
