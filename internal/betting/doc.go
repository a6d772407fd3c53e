// Package betting is a deterministic, seeded wagering simulator.
//
// It is an honest simulation: opportunities come from a seeded
// generator, outcomes are drawn from win probabilities derived from
// the implied odds minus a bookmaker margin, and the expected value
// is therefore slightly negative, the way real books price markets.
// Nothing here fabricates profit.
//
// All money is integer cents and all odds integer hundredths; the rng
// is the only source of variation, so a seed fully determines a
// cycle.
package betting
