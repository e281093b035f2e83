// Package privacy provides rules deciding whether the statements of a
// veloxrm commit may run.
//
// A policy is an ordered list of rules. Each rule returns one of the
// decisions Allow, Deny or Skip:
//
//   - Allow: permits the statement and stops evaluation
//   - Deny: rejects the statement and stops evaluation
//   - Skip: continues with the next rule
//
// When every rule skips, the statement is permitted. End a policy with
// AlwaysDenyRule to deny by default.
//
//	policy := privacy.NewPolicy(
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.OnTables(privacy.IsOwner("user_id"), "author"),
//	    privacy.DenyMutationOperationRule(veloxrm.OpDelete),
//	    privacy.AlwaysAllowRule(),
//	)
//	rm, err := veloxrm.New(drv, s, veloxrm.WithPolicy(policy))
//
// The viewer is taken from the context passed to Commit:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID: "7",
//	    Roles:  []string{"editor"},
//	})
//	err = rm.Commit(ctx)
//
// A denied statement aborts the commit with a *veloxrm.PrivacyError
// wrapping the decision:
//
//	if errors.Is(err, privacy.Deny) {
//	    ...
//	}
package privacy
