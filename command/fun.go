package command

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"gitlab.com/zephyrtronium/pick"

	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/room"
)

var answers = pick.New([]pick.Case[string]{
	{E: "Yes.", W: 10},
	{E: "No.", W: 10},
	{E: "Maybe.", W: 5},
	{E: "Definitely.", W: 3},
	{E: "Absolutely not.", W: 3},
	{E: "Ask again later.", W: 2},
	{E: "I'd rather not say.", W: 1},
})

var flavors = pick.New([]pick.Case[string]{
	{E: "chocolate chip", W: 10},
	{E: "oatmeal raisin", W: 4},
	{E: "sugar", W: 6},
	{E: "snickerdoodle", W: 5},
	{E: "peanut butter", W: 5},
	{E: "fortune", W: 1},
})

// Ask answers a yes or no question.
func Ask(ctx context.Context, robo *Robot, call *Invocation) error {
	if strings.TrimSpace(call.Args) == "" {
		robo.usage(call)
		return nil
	}
	robo.Reply(call, message.Format("", "%s", answers.Pick(rand.Uint32())))
	return nil
}

// Choose picks one of several options. Options are separated by commas if
// there are any, otherwise by spaces.
func Choose(ctx context.Context, robo *Robot, call *Invocation) error {
	var opts []string
	if strings.Contains(call.Args, ",") {
		for _, o := range strings.Split(call.Args, ",") {
			if o = strings.TrimSpace(o); o != "" {
				opts = append(opts, o)
			}
		}
	} else {
		opts = strings.Fields(call.Args)
	}
	if len(opts) < 2 {
		robo.usage(call)
		return nil
	}
	robo.Reply(call, message.Format("", "%s", opts[rand.IntN(len(opts))]))
	return nil
}

// Cookie gives a cookie to the invoker or to someone else.
func Cookie(ctx context.Context, robo *Robot, call *Invocation) error {
	to := strings.TrimSpace(call.Args)
	if to == "" {
		to = call.Message.Sender
	}
	if strings.ContainsAny(to, " \t") {
		robo.usage(call)
		return nil
	}
	f := flavors.Pick(rand.Uint32())
	reply := robo.replier(call)
	robo.Async(func(ctx context.Context) func() {
		n, err := robo.Store.AddCookie(ctx, to, 1)
		return func() {
			if err != nil {
				robo.Log.ErrorContext(ctx, "couldn't give cookie", slog.String("target", to), slog.Any("err", err))
				reply(message.Format("", "I dropped the cookie, sorry."))
				return
			}
			reply(message.Format("", "%s gets a %s cookie! That makes %d.", to, f, n))
		}
	})
	return nil
}

// Raffle is a raffle in progress.
type Raffle struct {
	// Open is whether users may enter.
	Open bool
	// Entrants lists the users who have entered.
	Entrants []string
}

const (
	defaultRaffle = time.Minute
	maxRaffle     = 10 * time.Minute
	raffleCookies = 5
)

// StartRaffle opens a raffle for some number of seconds. When it closes,
// a random entrant wins cookies.
func StartRaffle(ctx context.Context, robo *Robot, call *Invocation) error {
	d := defaultRaffle
	if arg := strings.TrimSpace(call.Args); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			robo.usage(call)
			return nil
		}
		d = min(time.Duration(n)*time.Second, maxRaffle)
	}
	if robo.Raffle.Open {
		robo.Reply(call, message.Format("", "A raffle is already running. Type %senter to join!", robo.Sigil))
		return nil
	}
	robo.Raffle = Raffle{Open: true}
	robo.Reply(call, message.Format("", "A raffle has started! Type %senter in the next %v to join.", robo.Sigil, d))
	robo.After(d, func() { drawRaffle(robo) })
	return nil
}

func drawRaffle(robo *Robot) {
	r := robo.Raffle
	robo.Raffle = Raffle{}
	if len(r.Entrants) == 0 {
		robo.Emit.Message(message.Format("", "Nobody entered the raffle."))
		return
	}
	w := r.Entrants[rand.IntN(len(r.Entrants))]
	robo.Async(func(ctx context.Context) func() {
		n, err := robo.Store.AddCookie(ctx, w, raffleCookies)
		return func() {
			if err != nil {
				robo.Log.ErrorContext(ctx, "couldn't award raffle", slog.String("winner", w), slog.Any("err", err))
				robo.Emit.Message(message.Format("", "%s won the raffle!", w))
				return
			}
			robo.Emit.Message(message.Format("", "%s won the raffle and %d cookies! That makes %d.", w, raffleCookies, n))
		}
	})
}

// Enter enters the running raffle.
func Enter(ctx context.Context, robo *Robot, call *Invocation) error {
	if !robo.Raffle.Open {
		return nil
	}
	name := call.Message.Sender
	for _, e := range robo.Raffle.Entrants {
		if room.SameName(e, name) {
			return nil
		}
	}
	robo.Raffle.Entrants = append(robo.Raffle.Entrants, name)
	return nil
}
