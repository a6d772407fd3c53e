package betting

// Policy decides which opportunities are worth staking and how much.
type Policy struct {
	// MinConfidence in hundredths; opportunities below it are passed
	// over. Default 70.
	MinConfidence int64
	// StakePercent of the current bankroll per bet. Default 2.
	StakePercent int64
	// DailyStakeCap in cents; once the day's total stakes reach it,
	// no further bets are placed. Zero means no cap.
	DailyStakeCap int64
	// DailyLossLimit in cents; a cycle stops placing bets once its
	// net goes this far negative. Zero means no limit.
	DailyLossLimit int64
}

// DefaultPolicy matches the stock simulator configuration.
var DefaultPolicy = Policy{
	MinConfidence:  70,
	StakePercent:   2,
	DailyStakeCap:  50_000,  // $500
	DailyLossLimit: 20_000,  // $200
}

func (p Policy) normalized() Policy {
	if p.MinConfidence <= 0 {
		p.MinConfidence = DefaultPolicy.MinConfidence
	}
	if p.StakePercent <= 0 {
		p.StakePercent = DefaultPolicy.StakePercent
	}
	return p
}

// stake sizes a bet from the current bankroll.
func (p Policy) stake(bankrollCents int64) int64 {
	return bankrollCents * p.StakePercent / 100
}

// accepts reports whether an opportunity clears the confidence floor.
func (p Policy) accepts(opp Opportunity) bool {
	return opp.Confidence >= p.MinConfidence
}

// dayDone reports whether the daily stop has been hit.
func (p Policy) dayDone(stakedToday, netToday int64) bool {
	if p.DailyStakeCap > 0 && stakedToday >= p.DailyStakeCap {
		return true
	}
	if p.DailyLossLimit > 0 && netToday <= -p.DailyLossLimit {
		return true
	}
	return false
}
