/*
Package workflow defines approval workflow types and primitives.

# Templates

A workflow template is an ordered list of steps bound to a single form.
Templates are data: they are authored (e.g. as JSON or YAML) and stored
by a schema provider rather than compiled into the engine. Each step
names who may act on it (an actor, a group, a role, or nobody for
system-only steps), an optional gate condition evaluated against the
submission data, an optional auto-advance timeout and the actions
permitted at that step.

Steps are identified by name and ordered by their Order value. Orders
must be unique within a template. The model is linear with conditional
skip: there are no arbitrary graphs, parallel joins or sub-workflows.

# Step resolution

When an instance starts the first step whose gate is satisfied (or that
has no gate) becomes current. After an approval an action's explicit
next step wins without consulting gates; otherwise the scan continues
with steps ordered after the current one. If no step is eligible when
starting the instance is Stalled: active, but with no current step,
awaiting administrative reassignment. If no step is eligible after an
approval the instance terminates as approved.

# Instances and history

Newly started workflows are given an instance ID. An instance carries
its template by value so that later template edits do not change the
path of in-flight submissions. Every state change is paired with
exactly one appended history entry recording the step, the action, the
actor (empty for the system), an optional comment and before and after
snapshots of the instance state.

# Process model

Functions in this package are pure: they never mutate their inputs and
perform no I/O. The engine layers persistence, notification and
scheduling around them.
*/
package workflow
